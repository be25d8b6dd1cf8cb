package models

import (
	"time"

	"github.com/google/uuid"
)

// Thread is the single conversation container for one unordered pair of
// agents. The pair is stored in canonical order: AgentLow's UUID string
// compares lexicographically before AgentHigh's, so {A,B} and {B,A} always
// resolve to the same row.
type Thread struct {
	ID            uuid.UUID `json:"id"`
	AgentLow      uuid.UUID `json:"agent_low"`
	AgentHigh     uuid.UUID `json:"agent_high"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Member reports whether the given agent is one of the thread's two members.
func (t *Thread) Member(agentID uuid.UUID) bool {
	return agentID == t.AgentLow || agentID == t.AgentHigh
}

// OtherParty returns the member that is not the given agent. Callers must
// check Member first; for a non-member the low agent is returned.
func (t *Thread) OtherParty(agentID uuid.UUID) uuid.UUID {
	if agentID == t.AgentLow {
		return t.AgentHigh
	}
	return t.AgentLow
}

// ThreadSummary is one inbox entry: a thread plus unread metadata computed
// relative to the requesting agent.
type ThreadSummary struct {
	ThreadID      uuid.UUID `json:"thread_id"`
	AgentLow      uuid.UUID `json:"agent_low"`
	AgentHigh     uuid.UUID `json:"agent_high"`
	OtherParty    uuid.UUID `json:"other_party"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
}
