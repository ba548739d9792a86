// Package llm defines the completion client used for model calls, judge
// calls, and RAG answer generation, together with the error taxonomy the
// retry policy branches on.
package llm

import "context"

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Content part types for multi-part (vision) messages.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// ContentPart is one element of a multi-part message. Image parts carry a
// data URL with the base64-encoded payload.
type ContentPart struct {
	Type     string
	Text     string
	ImageURL string
}

// Message is a single chat turn. When Parts is non-empty it takes precedence
// over Content and the message is sent as multi-part content.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// Request describes one completion call. A nil Temperature leaves the
// provider's sampling default in place; a non-nil value, including an
// explicit zero, must reach the wire.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature *float32
	// JSONOnly asks the provider for a JSON-object response where supported.
	JSONOnly bool
}

// Response is the extracted text content of a completion.
type Response struct {
	Content string
}

// Completer executes a single completion request. Implementations must
// surface non-success HTTP statuses as *StatusError and network-level
// failures as *TransportError so callers can distinguish them.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// TextMessage builds a plain text message.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}

// Temp builds a Request temperature. Deterministic calls pass Temp(0).
func Temp(v float32) *float32 { return &v }
