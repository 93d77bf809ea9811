// internal/types/models.go
package types

import (
	"strings"
	"time"
)

// TranscriptEntry is one complete utterance attributed to the user or the agent.
type TranscriptEntry struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp_utc"`
	Source    string    `json:"source"`
}

// SessionRecord is the mutable state of one active call, held by the registry
// from creation until finalize.
type SessionRecord struct {
	SessionID SessionID `json:"session_id"`
	RoomName  string    `json:"room_name"`
	AgentID   AgentID   `json:"agent_id,omitempty"`
	CallID    CallID    `json:"call_id,omitempty"`
	Language  string    `json:"language"`

	ClientInfo map[string]string `json:"client_info"`

	StartTime       time.Time  `json:"start_time_utc"`
	EndTime         *time.Time `json:"end_time_utc,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`

	UserTranscripts  []TranscriptEntry `json:"user_transcripts"`
	AgentTranscripts []TranscriptEntry `json:"agent_transcripts"`

	TotalUserMessages   int `json:"total_user_messages"`
	TotalAgentResponses int `json:"total_agent_responses"`
}

// TranscriptText renders the conversation as "User: ..." / "Agent: ..." lines,
// user turns first, for the summarizer handoff.
func (r *SessionRecord) TranscriptText() string {
	lines := make([]string, 0, len(r.UserTranscripts)+len(r.AgentTranscripts))
	for _, t := range r.UserTranscripts {
		lines = append(lines, "User: "+t.Text)
	}
	for _, t := range r.AgentTranscripts {
		lines = append(lines, "Agent: "+t.Text)
	}
	return strings.Join(lines, "\n")
}

// AgentConfig is the per-agent configuration read from the agent store.
type AgentConfig struct {
	Voice              string `json:"voice,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
	GreetingMessage    string `json:"greeting_message,omitempty"`
	Gender             string `json:"gender,omitempty"`
}

// KnowledgeEntry is one knowledge-base item attached to an agent.
type KnowledgeEntry struct {
	Content string `json:"content"`
}

// JoinEvent carries the trigger metadata delivered when a participant joins a
// room. Fields other than Room are optional and pass through from the
// signaling layer unmodified.
type JoinEvent struct {
	Room      string  `json:"room"`
	AgentID   AgentID `json:"agent_id,omitempty"`
	CallID    CallID  `json:"call_id,omitempty"`
	Language  string  `json:"language,omitempty"`
	IP        string  `json:"ip,omitempty"`
	Device    string  `json:"device,omitempty"`
	UserAgent string  `json:"user_agent,omitempty"`
}

// ClientInfo flattens the caller metadata into the opaque mapping stored on
// the session record.
func (e *JoinEvent) ClientInfo() map[string]string {
	info := map[string]string{
		"ip":          e.IP,
		"device_type": e.Device,
		"user_agent":  e.UserAgent,
	}
	if info["ip"] == "" {
		info["ip"] = "unknown"
	}
	if info["device_type"] == "" {
		info["device_type"] = "unknown"
	}
	return info
}

// CallSummary is the structured summary produced for a finished call.
type CallSummary struct {
	RequestedData    string            `json:"requestedData"`
	ResponseData     string            `json:"responseData"`
	ContactInfo      map[string]string `json:"contactInfo"`
	DeliveryChannels []string          `json:"deliveryChannels"`
}
