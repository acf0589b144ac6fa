package types

import "time"

// CorrelationStatus tracks whether a handler's external effect succeeded.
type CorrelationStatus string

const (
	CorrelationPending   CorrelationStatus = "PENDING"
	CorrelationCompleted CorrelationStatus = "COMPLETED"
	CorrelationFailed    CorrelationStatus = "FAILED"
)

// ServiceCorrelation is a durable record proving (or disproving) that a
// handler's external effect was carried out, e.g. enforcing "the wakeup
// step must have a SPEAK before TASK_COMPLETE" (spec.md §3).
type ServiceCorrelation struct {
	ID           string                 `json:"id"`
	TaskID       string                 `json:"task_id"`
	ServiceType  string                 `json:"service_type"`
	HandlerName  string                 `json:"handler_name"`
	ActionType   string                 `json:"action_type"`
	RequestData  map[string]interface{} `json:"request_data,omitempty"`
	ResponseData map[string]interface{} `json:"response_data,omitempty"`
	Status       CorrelationStatus      `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// GraphNodeType enumerates the kinds of node MEMORIZE/RECALL/FORGET operate on.
type GraphNodeType string

const (
	GraphNodeAgent   GraphNodeType = "AGENT"
	GraphNodeUser    GraphNodeType = "USER"
	GraphNodeChannel GraphNodeType = "CHANNEL"
	GraphNodeConcept GraphNodeType = "CONCEPT"
)

// GraphNodeScope enumerates the visibility scope of a graph node.
type GraphNodeScope string

const (
	ScopeLocal       GraphNodeScope = "LOCAL"
	ScopeIdentity    GraphNodeScope = "IDENTITY"
	ScopeEnvironment GraphNodeScope = "ENVIRONMENT"
)

// GraphNode is the typed payload MEMORIZE/RECALL/FORGET hand to the Memory
// collaborator via the Bus.
type GraphNode struct {
	ID         string                 `json:"id"`
	Type       GraphNodeType          `json:"type"`
	Scope      GraphNodeScope         `json:"scope"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// DMASummary is a compact record of one evaluator's verdict, embedded in a
// DeferralPackage so the Wise Authority can see why the agent is escalating.
type DMASummary struct {
	Evaluator string `json:"evaluator"`
	Verdict   string `json:"verdict"`
	Detail    string `json:"detail,omitempty"`
}

// DeferralPackage is what DEFER sends to the WiseAuthority collaborator.
type DeferralPackage struct {
	ThoughtID       string       `json:"thought_id"`
	TaskID          string       `json:"task_id"`
	Reason          string       `json:"reason"`
	ThoughtContent  string       `json:"thought_content"`
	TaskDescription string       `json:"task_description"`
	DMASummaries    []DMASummary `json:"dma_summaries,omitempty"`
}
