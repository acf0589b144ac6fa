package types

import "time"

// ThoughtType classifies why a Thought was created.
type ThoughtType string

const (
	ThoughtTypeStandard   ThoughtType = "STANDARD"
	ThoughtTypeFollowUp   ThoughtType = "FOLLOW_UP"
	ThoughtTypePonder     ThoughtType = "PONDER"
	ThoughtTypeObservation ThoughtType = "OBSERVATION"
	ThoughtTypeMemory     ThoughtType = "MEMORY"
	ThoughtTypeError      ThoughtType = "ERROR"
	ThoughtTypeFeedback   ThoughtType = "FEEDBACK"
	ThoughtTypeGuidance   ThoughtType = "GUIDANCE"
)

// ThoughtStatus is the lifecycle state of a Thought.
type ThoughtStatus string

const (
	ThoughtStatusPending    ThoughtStatus = "PENDING"
	ThoughtStatusProcessing ThoughtStatus = "PROCESSING"
	ThoughtStatusCompleted  ThoughtStatus = "COMPLETED"
	ThoughtStatusFailed     ThoughtStatus = "FAILED"
	ThoughtStatusDeferred   ThoughtStatus = "DEFERRED"
)

// IsTerminal reports whether the status is a terminal write.
func (s ThoughtStatus) IsTerminal() bool {
	switch s {
	case ThoughtStatusCompleted, ThoughtStatusFailed, ThoughtStatusDeferred:
		return true
	default:
		return false
	}
}

// ThoughtContext is the structured snapshot carried alongside a Thought,
// built by the ContextBuilder and consumed by DMA evaluators and guardrails.
type ThoughtContext struct {
	Channel           string            `json:"channel,omitempty"`
	Author            string            `json:"author,omitempty"`
	AuthorName        string            `json:"author_name,omitempty"`
	OriginService     string            `json:"origin_service,omitempty"`
	TaskDescription   string            `json:"task_description,omitempty"`
	RoundNumber       int               `json:"round_number"`
	PonderNotes       []string          `json:"ponder_notes,omitempty"`
	HasSpeakCorrelate bool              `json:"has_speak_correlate"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// Thought is a single deliberation attempt attached to a Task.
type Thought struct {
	ID              string        `json:"id"`
	SourceTaskID    string        `json:"source_task_id"`
	ParentThoughtID string        `json:"parent_thought_id,omitempty"`
	ThoughtType     ThoughtType   `json:"thought_type"`
	Status          ThoughtStatus `json:"status"`
	RoundNumber     int           `json:"round_number"`
	PonderCount     int           `json:"ponder_count"`
	PonderNotes     []string      `json:"ponder_notes,omitempty"`
	Context         ThoughtContext `json:"context"`
	Content         string        `json:"content"`
	FinalAction     *ActionSelectionResult `json:"final_action,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Clone returns a deep-enough copy safe for handing to a caller.
func (t *Thought) Clone() *Thought {
	if t == nil {
		return nil
	}
	cp := *t
	if t.PonderNotes != nil {
		cp.PonderNotes = append([]string(nil), t.PonderNotes...)
	}
	if t.Context.PonderNotes != nil {
		cp.Context.PonderNotes = append([]string(nil), t.Context.PonderNotes...)
	}
	if t.FinalAction != nil {
		fa := *t.FinalAction
		cp.FinalAction = &fa
	}
	return &cp
}

// NewFollowUp builds a follow-up Thought linked to its creator, enforcing
// invariant (b)/(d) from spec.md §3: inherited source_task_id, parent
// linkage, and ponder_count = parent.ponder_count + 1.
func NewFollowUp(id string, parent *Thought, thoughtType ThoughtType, content string) *Thought {
	return &Thought{
		ID:              id,
		SourceTaskID:    parent.SourceTaskID,
		ParentThoughtID: parent.ID,
		ThoughtType:     thoughtType,
		Status:          ThoughtStatusPending,
		RoundNumber:     parent.RoundNumber + 1,
		PonderCount:     parent.PonderCount + 1,
		Content:         content,
		Context:         parent.Context,
		CreatedAt:       parent.UpdatedAt,
		UpdatedAt:       parent.UpdatedAt,
	}
}

// ProcessingQueueItem is the lightweight handle stored in the ProcessingQueue.
// Full Thoughts are fetched from Store by id when needed.
type ProcessingQueueItem struct {
	ThoughtID      string
	SourceTaskID   string
	Type           ThoughtType
	Priority       int
	InitialContext ThoughtContext
	PonderNotes    []string
}
