package oversight

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle state of an approval ticket.
type TicketStatus string

const (
	// StatusPending awaits a human decision.
	StatusPending TicketStatus = "pending"

	// StatusApproved permits resubmission of the request.
	StatusApproved TicketStatus = "approved"

	// StatusRejected denies the request permanently.
	StatusRejected TicketStatus = "rejected"
)

// Ticket is a pending request for human authorization.
type Ticket struct {
	ID            string
	AgentID       string
	Tool          string
	Function      string
	Arguments     map[string]any
	Justification string
	RiskLevel     string
	Status        TicketStatus
	Approver      string
	CreatedAt     time.Time
	DecidedAt     time.Time
}

// ApprovalConfig configures the workflow.
type ApprovalConfig struct {
	// HighRiskTools lists tool names that always require approval.
	HighRiskTools []string

	// HighRiskFunctions lists regexes; a function name matching any of
	// them requires approval regardless of tool.
	HighRiskFunctions []string

	// Notify, if set, is invoked synchronously with each new ticket.
	Notify func(*Ticket)
}

// ApprovalWorkflow holds pending tickets and matches requests against
// the high-risk set. There is no built-in timeout; callers poll.
type ApprovalWorkflow struct {
	highRiskTools     map[string]struct{}
	highRiskFunctions []*regexp.Regexp
	notify            func(*Ticket)
	logger            *slog.Logger

	mu      sync.Mutex
	tickets map[string]*Ticket
}

// NewApprovalWorkflow compiles the high-risk set and returns the
// workflow. An invalid function pattern fails construction.
func NewApprovalWorkflow(config ApprovalConfig) (*ApprovalWorkflow, error) {
	tools := make(map[string]struct{}, len(config.HighRiskTools))
	for _, t := range config.HighRiskTools {
		tools[t] = struct{}{}
	}

	patterns := make([]*regexp.Regexp, 0, len(config.HighRiskFunctions))
	for i, pat := range config.HighRiskFunctions {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("high_risk_functions[%d]: %w", i, err)
		}
		patterns = append(patterns, re)
	}

	return &ApprovalWorkflow{
		highRiskTools:     tools,
		highRiskFunctions: patterns,
		notify:            config.Notify,
		logger:            slog.Default().With("component", "oversight.approval"),
		tickets:           make(map[string]*Ticket),
	}, nil
}

// RequiresApproval reports whether the (tool, function) pair is in the
// high-risk set.
func (w *ApprovalWorkflow) RequiresApproval(tool, function string) bool {
	if _, ok := w.highRiskTools[tool]; ok {
		return true
	}
	for _, re := range w.highRiskFunctions {
		if re.MatchString(function) {
			return true
		}
	}
	return false
}

// RequestApproval creates a pending ticket and fires the notification
// callback. The returned ticket is a copy; poll by ID for the decision.
func (w *ApprovalWorkflow) RequestApproval(agentID, tool, function string, args map[string]any, justification, riskLevel string) Ticket {
	ticket := &Ticket{
		ID:            uuid.New().String(),
		AgentID:       agentID,
		Tool:          tool,
		Function:      function,
		Arguments:     args,
		Justification: justification,
		RiskLevel:     riskLevel,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}

	w.mu.Lock()
	w.tickets[ticket.ID] = ticket
	w.mu.Unlock()

	w.logger.Info("approval requested",
		"ticket_id", ticket.ID,
		"agent_id", agentID,
		"tool", tool,
		"function", function,
		"risk_level", riskLevel,
	)

	if w.notify != nil {
		copied := *ticket
		w.notify(&copied)
	}
	return *ticket
}

// Approve marks a pending ticket approved.
func (w *ApprovalWorkflow) Approve(id, approver string) error {
	return w.decide(id, approver, StatusApproved)
}

// Reject marks a pending ticket rejected.
func (w *ApprovalWorkflow) Reject(id, approver string) error {
	return w.decide(id, approver, StatusRejected)
}

func (w *ApprovalWorkflow) decide(id, approver string, status TicketStatus) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ticket, ok := w.tickets[id]
	if !ok {
		return &TicketError{ID: id, Cause: errUnknownTicket}
	}
	if ticket.Status != StatusPending {
		return &TicketError{ID: id, Cause: errAlreadyDecided}
	}

	ticket.Status = status
	ticket.Approver = approver
	ticket.DecidedAt = time.Now()

	w.logger.Info("approval decided",
		"ticket_id", id,
		"status", status,
		"approver", approver,
	)
	return nil
}

// Get returns a copy of the ticket with the given ID.
func (w *ApprovalWorkflow) Get(id string) (Ticket, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ticket, ok := w.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return *ticket, true
}

// Pending returns copies of all tickets still awaiting a decision.
func (w *ApprovalWorkflow) Pending() []Ticket {
	w.mu.Lock()
	defer w.mu.Unlock()

	var pending []Ticket
	for _, ticket := range w.tickets {
		if ticket.Status == StatusPending {
			pending = append(pending, *ticket)
		}
	}
	return pending
}
