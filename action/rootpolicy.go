package action

import "github.com/ciris-ai/ciris-agent/types"

// RootPolicy answers the protected-root question spec.md §9's Open
// Question (b) resolves concretely: a single configurable set of task ids
// (config.RuntimeConfig.ProtectedTaskIDs) that are exempt from
// child-driven terminal transitions — the wakeup root, the system task,
// persistent monitor jobs, and the dream task.
type RootPolicy struct {
	ProtectedTaskIDs map[string]bool
}

// NewRootPolicy builds a RootPolicy from a list of protected task ids.
func NewRootPolicy(ids []string) RootPolicy {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return RootPolicy{ProtectedTaskIDs: set}
}

// IsProtected reports whether task is a protected root, exempt from
// DEFER/COMPLETE cascades driven by a child Thought.
func (p RootPolicy) IsProtected(task *types.Task) bool {
	return task != nil && p.ProtectedTaskIDs[task.ID]
}
