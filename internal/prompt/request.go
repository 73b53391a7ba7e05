package prompt

import (
	"newsbench/internal/corpus"
	"newsbench/internal/models"
)

// Role tags a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind distinguishes the content blocks of a turn.
type PartKind string

const (
	PartText PartKind = "text"
	// PartImage carries the encoded image inline.
	PartImage PartKind = "image"
	// PartImageRef is a placeholder; the image travels in Request.Image.
	PartImageRef PartKind = "image_ref"
)

// Part is one content block.
type Part struct {
	Kind   PartKind
	Text   string
	Image  *corpus.Image
	Detail string
}

// Turn is a role-tagged sequence of parts.
type Turn struct {
	Role  Role
	Parts []Part
}

// Text concatenates the text parts of the turn.
func (t Turn) Text() string {
	var s string
	for _, p := range t.Parts {
		if p.Kind == PartText {
			s += p.Text
		}
	}
	return s
}

// Request is a prompt rendered for a provider dialect. Completion dialects
// use Text, chat dialects use Turns.
type Request struct {
	Dialect models.Dialect
	Text    string
	Turns   []Turn
	// Image is the picture shipped out of band to reference-mode providers.
	Image *corpus.Image
	// ImageName is the corpus image shown with the prompt, empty when none.
	ImageName string
}

// PromptText returns the full text that was composed for the request.
func (r *Request) PromptText() string {
	if r.Dialect == models.DialectCompletion {
		return r.Text
	}
	for _, t := range r.Turns {
		if t.Role == RoleUser {
			return t.Text()
		}
	}
	return ""
}

// Message is one turn of a pruned transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the image-free form of a request kept in logs and checkpoints.
type Transcript []Message

// Prune strips image payloads from a request, keeping roles and text.
func Prune(r *Request) Transcript {
	if r == nil {
		return nil
	}
	if r.Dialect == models.DialectCompletion {
		return Transcript{{Role: RoleUser, Content: r.Text}}
	}
	out := make(Transcript, 0, len(r.Turns))
	for _, t := range r.Turns {
		out = append(out, Message{Role: t.Role, Content: t.Text()})
	}
	return out
}

// Plain wraps text in a single user turn with no image.
func Plain(text string) *Request {
	return &Request{
		Dialect: models.DialectChat,
		Turns:   []Turn{{Role: RoleUser, Parts: []Part{{Kind: PartText, Text: text}}}},
	}
}
