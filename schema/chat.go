package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Roles accepted on incoming messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Content part discriminators.
const (
	PartText     = "text"
	PartImageURL = "image_url"
	PartPDFURL   = "pdf_url"
)

// PDFDataURIPrefix is the only accepted scheme for inline PDF documents.
const PDFDataURIPrefix = "data:application/pdf;base64,"

var (
	ErrNoMessages = errors.New("request must contain at least one message")
	ErrBadRole    = errors.New("unknown message role")
	ErrBadPDFURL  = errors.New("pdf_url must be a data:application/pdf;base64 URI")
)

// ChatRequest is the one canonical request type flowing through the gateway.
// It is a superset of the OpenAI chat-completions body: the two augmentation
// flags are stripped before the request is forwarded upstream.
type ChatRequest struct {
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       json.RawMessage `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`

	UseSearch bool `json:"use_search,omitempty"`
	UsePDF    bool `json:"use_pdf,omitempty"`
}

// Message is one conversation turn. Content is always held in the list form;
// UnmarshalJSON lifts the shorthand string and single-object encodings into
// it, so normalization is idempotent.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
	Name    string        `json:"name,omitempty"`
}

// ContentPart is a closed union discriminated by Type.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *MediaURL `json:"image_url,omitempty"`
	PDFURL   *MediaURL `json:"pdf_url,omitempty"`
}

type MediaURL struct {
	URL string `json:"url"`
}

func TextPart(s string) ContentPart { return ContentPart{Type: PartText, Text: s} }

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
		Name    string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Name = raw.Name
	m.Content = nil
	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	switch raw.Content[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw.Content, &s); err != nil {
			return err
		}
		m.Content = []ContentPart{TextPart(s)}
	case '{':
		var p ContentPart
		if err := json.Unmarshal(raw.Content, &p); err != nil {
			return err
		}
		m.Content = []ContentPart{p}
	default:
		if err := json.Unmarshal(raw.Content, &m.Content); err != nil {
			return err
		}
	}
	return nil
}

// Text concatenates the message's text parts, separated by newlines.
func (m *Message) Text() string {
	var parts []string
	for _, p := range m.Content {
		if p.Type == PartText && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// PDFParts returns the inline PDF parts of the message. Parts carrying a
// pdf_url that is not a base64 data URI yield ErrBadPDFURL; there is no
// silent skip.
func (m *Message) PDFParts() ([]ContentPart, error) {
	var out []ContentPart
	for i, p := range m.Content {
		if p.Type != PartPDFURL {
			continue
		}
		if p.PDFURL == nil || !strings.HasPrefix(p.PDFURL.URL, PDFDataURIPrefix) {
			return nil, fmt.Errorf("content part %d: %w", i, ErrBadPDFURL)
		}
		out = append(out, p)
	}
	return out, nil
}

// StripPDFParts removes all pdf_url parts from the message.
func (m *Message) StripPDFParts() {
	kept := m.Content[:0]
	for _, p := range m.Content {
		if p.Type != PartPDFURL {
			kept = append(kept, p)
		}
	}
	m.Content = kept
}

// Validate checks the structural invariants of an incoming request.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return fmt.Errorf("message %d: %w: %q", i, ErrBadRole, m.Role)
		}
	}
	return nil
}

// ActiveTurn returns a pointer to the last message, the turn augmentation
// operates on. Callers must have validated the request first.
func (r *ChatRequest) ActiveTurn() *Message {
	return &r.Messages[len(r.Messages)-1]
}

// InjectBeforeActiveTurn splices the given messages immediately before the
// active turn, preserving everything else in order.
func (r *ChatRequest) InjectBeforeActiveTurn(msgs ...Message) {
	n := len(r.Messages) - 1
	out := make([]Message, 0, len(r.Messages)+len(msgs))
	out = append(out, r.Messages[:n]...)
	out = append(out, msgs...)
	out = append(out, r.Messages[n])
	r.Messages = out
}

// Forwardable returns the JSON body to send upstream: the request with the
// augmentation flags removed and the stream flag forced to the given value.
func (r *ChatRequest) Forwardable(stream bool) ([]byte, error) {
	c := *r
	c.UseSearch = false
	c.UsePDF = false
	c.Stream = stream
	c.Messages = append([]Message(nil), r.Messages...)
	return json.Marshal(&c)
}

// SystemMessage builds a system turn holding one text part.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{TextPart(text)}}
}
