// Package ponder implements the PonderManager (spec.md §4.7): bounded
// deliberation rounds for the PONDER action. Semantics are grounded
// closely on ponder/manager.py — the
// max-round check happens against the thought's *current* ponder_count
// before incrementing, and a DEFER produced here yields no follow-up from
// this package; the Task-level DEFER cascade is the dispatcher's concern.
package ponder

import (
	"context"
	"time"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/types"
)

// DefaultMaxPonderRounds mirrors spec.md §6's max_ponder_rounds default.
const DefaultMaxPonderRounds = 5

// Manager applies the bounded ponder loop to a thought that selected
// PONDER.
type Manager struct {
	Store           store.Store
	MaxPonderRounds int
}

// New constructs a Manager with the default round budget.
func New(s store.Store) *Manager {
	return &Manager{Store: s, MaxPonderRounds: DefaultMaxPonderRounds}
}

// Outcome reports what Process did, so the caller (the PONDER handler)
// knows whether to cascade a DEFER to the parent Task.
type Outcome struct {
	Deferred bool
}

// Process applies one PONDER round to thought using questions gathered by
// ActionSelection/guardrails for this round.
//
// If thought.PonderCount is already one short of the configured maximum —
// meaning this round would otherwise produce the final permitted
// follow-up — the thought is deferred with its accumulated notes instead,
// and no follow-up is produced. The caller is responsible for cascading
// that DEFER to the parent Task unless it is a protected root.
//
// Otherwise the new questions are appended to PonderNotes, PonderCount is
// incremented, and the thought is set back to PENDING so it re-enters the
// Processing Queue; evaluators will see the accumulated notes and count the
// next time this thought is processed.
func (m *Manager) Process(ctx context.Context, thought *types.Thought, newQuestions []string) (Outcome, error) {
	limit := m.MaxPonderRounds
	if limit <= 0 {
		limit = DefaultMaxPonderRounds
	}

	notes := append(append([]string(nil), thought.PonderNotes...), newQuestions...)

	if thought.PonderCount >= limit-1 {
		thought.Status = types.ThoughtStatusDeferred
		thought.PonderNotes = notes
		thought.UpdatedAt = time.Now()
		if err := m.Store.UpdateThoughtStatus(ctx, store.ThoughtStatusUpdate{
			ThoughtID:  thought.ID,
			NewStatus:  types.ThoughtStatusDeferred,
			PonderNotes: notes,
			SetNotes:   true,
		}); err != nil {
			return Outcome{}, err
		}
		return Outcome{Deferred: true}, nil
	}

	thought.PonderNotes = notes
	thought.PonderCount++
	thought.Status = types.ThoughtStatusPending
	thought.UpdatedAt = time.Now()

	newCount := thought.PonderCount
	if err := m.Store.UpdateThoughtStatus(ctx, store.ThoughtStatusUpdate{
		ThoughtID:   thought.ID,
		NewStatus:   types.ThoughtStatusPending,
		PonderCount: &newCount,
		PonderNotes: notes,
		SetNotes:    true,
	}); err != nil {
		return Outcome{}, err
	}
	return Outcome{Deferred: false}, nil
}
