package stream

// Wire defaults for the flow service's streaming chat endpoint.
const (
	defaultLabel     = "roles"
	defaultSessionID = "1-1"
)

// ChatRequest is the request body POSTed to the flow service's streaming
// chat endpoint.
type ChatRequest struct {
	Params    ChatParams `json:"params"`
	Label     string     `json:"label"`
	SessionID string     `json:"sessionId"`
	Stream    bool       `json:"stream"`
}

// ChatParams carries the user prompt and the fixed system role string.
type ChatParams struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// NewChatRequest builds a streaming chat request. Empty label or sessionId
// fall back to the wire defaults.
func NewChatRequest(content, role, label, sessionID string) *ChatRequest {
	if label == "" {
		label = defaultLabel
	}
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	return &ChatRequest{
		Params: ChatParams{
			Content: content,
			Role:    role,
		},
		Label:     label,
		SessionID: sessionID,
		Stream:    true,
	}
}
