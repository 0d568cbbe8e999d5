// Package loader reads rule-based policy configuration from YAML or JSON
// files and keeps a running policy fresh via a file watcher.
//
// YAML and JSON share one schema:
//
//	default_allow: false
//	rules:
//	  - tool: "database"
//	    function: "select_.*"
//	    agent_id: ".*"       # optional, defaults to ".*"
//	    action: "allow"
//	    reason: "Read-only"
//	    id: "ro-select"      # optional
//
// JSON files parse through the same path; YAML is a superset of JSON.
package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"enacthq/enact/pkg/policy"
)

// File is the on-disk policy document.
type File struct {
	DefaultAllow bool          `yaml:"default_allow" json:"default_allow"`
	Rules        []policy.Rule `yaml:"rules" json:"rules"`
}

// Load reads and compiles the policy at path. Invalid entries fail the
// load with the offending rule index and field in the error.
func Load(path string) (*policy.RuleBased, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse compiles a policy document from raw bytes. The name is used in
// error messages only.
func Parse(data []byte, name string) (*policy.RuleBased, error) {
	var doc File
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", name, err)
	}

	p, err := policy.NewRuleBased(doc.Rules, doc.DefaultAllow)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", name, err)
	}
	return p, nil
}
