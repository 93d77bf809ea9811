// internal/types/interfaces.go
package types

import (
	"context"
)

// AgentStore reads per-agent configuration from the remote config store.
// A missing agent is (nil, false, nil), not an error.
type AgentStore interface {
	GetAgent(ctx context.Context, id AgentID) (*AgentConfig, bool, error)
}

// KnowledgeStore lists the knowledge-base entries attached to an agent.
type KnowledgeStore interface {
	ListKnowledge(ctx context.Context, id AgentID) ([]KnowledgeEntry, error)
}

// AnalyticsStore persists finished session records. Best effort: callers log
// failures and never surface them to the live call.
type AnalyticsStore interface {
	Put(ctx context.Context, record *SessionRecord) error
}

// SummaryJob is the handoff payload for post-call summarization.
type SummaryJob struct {
	AgentID    AgentID
	CallID     CallID
	Transcript string
	ClientInfo map[string]string
}

// SummarySink accepts summary jobs for out-of-band processing. Submit must
// not block session teardown.
type SummarySink interface {
	Submit(job SummaryJob)
}
