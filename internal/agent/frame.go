package agent

import "encoding/json"

// frameType enumerates the `type` discriminant of one newline-delimited
// JSON line in an agent's chat response stream (spec.md §6).
type frameType string

const (
	frameClaudeJSON frameType = "claude_json"
	frameError      frameType = "error"
	frameAborted    frameType = "aborted"
	frameDone       frameType = "done"
)

// envelope is the outer shape every ndjson line must have to be recognized;
// anything else (and anything that fails to unmarshal at all) is skipped
// silently per spec.md §4.1 step 3.
type envelope struct {
	Type      frameType       `json:"type"`
	Message   json.RawMessage `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	SessionID *string         `json:"sessionId,omitempty"`
}

// claudeMessage is the embedded assistant-style message carried by a
// claude_json frame; only text content fragments are accumulated.
type claudeMessage struct {
	SessionID *string       `json:"session_id,omitempty"`
	Content   []contentPart `json:"content,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// parseFrame attempts to decode one line as an envelope. ok is false for
// malformed or empty lines, which callers must skip without error.
func parseFrame(line []byte) (envelope, bool) {
	var env envelope
	if len(line) == 0 {
		return env, false
	}
	if err := json.Unmarshal(line, &env); err != nil {
		return env, false
	}
	if env.Type == "" {
		return env, false
	}
	return env, true
}

// extractText pulls text fragments and an optional session id out of a
// claude_json frame's embedded message, ignoring malformed messages.
func extractText(env envelope) (text string, sessionID *string) {
	if env.SessionID != nil {
		sessionID = env.SessionID
	}
	if len(env.Message) == 0 {
		return "", sessionID
	}
	var msg claudeMessage
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return "", sessionID
	}
	if msg.SessionID != nil {
		sessionID = msg.SessionID
	}
	for _, part := range msg.Content {
		if part.Type == "text" || part.Type == "" {
			text += part.Text
		}
	}
	return text, sessionID
}
