package console

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-agent/bus"
	"github.com/ciris-ai/ciris-agent/types"
)

func TestCommunication_FetchMessagesReplaysOwnSentHistoryByChannel(t *testing.T) {
	c := NewCommunication()
	ctx := context.Background()

	require.NoError(t, c.SendMessage(ctx, "general", "hello"))
	require.NoError(t, c.SendMessage(ctx, "other", "ignored"))
	require.NoError(t, c.SendMessage(ctx, "general", "world"))

	msgs, err := c.FetchMessages(ctx, "general", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].ResponseData["content"])
	assert.Equal(t, "world", msgs[1].ResponseData["content"])
}

func TestCommunication_FetchMessagesRespectsLimit(t *testing.T) {
	c := NewCommunication()
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, c.SendMessage(ctx, "general", content))
	}

	msgs, err := c.FetchMessages(ctx, "general", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].ResponseData["content"])
	assert.Equal(t, "three", msgs[1].ResponseData["content"])
}

func TestAudit_LogAuditDoesNotError(t *testing.T) {
	a := NewAudit()
	err := a.LogAudit(context.Background(), bus.AuditEvent{
		ThoughtID: "th1", TaskID: "t1", Action: types.ActionSpeak, Outcome: "ok",
	})
	assert.NoError(t, err)
}

func TestMemory_MemorizeRecallForget(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	node := types.GraphNode{ID: "n1", Type: types.GraphNodeConcept, Scope: types.ScopeLocal}

	require.NoError(t, m.Memorize(ctx, node))

	got, err := m.Recall(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, node, *got)

	require.NoError(t, m.Forget(ctx, "n1"))
	_, err = m.Recall(ctx, "n1")
	assert.Error(t, err)
}

func TestMemory_RecallMissingNodeErrors(t *testing.T) {
	m := NewMemory()
	_, err := m.Recall(context.Background(), "missing")
	assert.Error(t, err)
}

func TestWiseAuthority_SendDeferralThenNeverHasStandingGuidance(t *testing.T) {
	w := NewWiseAuthority()
	err := w.SendDeferral(context.Background(), types.DeferralPackage{
		TaskID: "t1", Reason: "uncertain", ThoughtContent: "should I do this?",
	})
	require.NoError(t, err)

	guidance, ok, err := w.FetchGuidance(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, guidance)
}
