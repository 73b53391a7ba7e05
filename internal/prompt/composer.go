// Package prompt composes the prompt for one news item from dialog fragments
// and renders it into the request shape a provider family expects.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"newsbench/internal/corpus"
	"newsbench/internal/logging"
	"newsbench/internal/models"
)

// ErrImageUnavailable is returned when a required image cannot be read.
var ErrImageUnavailable = errors.New("image unavailable")

// DefaultDetail is the image detail requested from inline-image providers.
const DefaultDetail = "high"

// Options select the fragments and annotations of a composition.
type Options struct {
	Pre       []string
	Post      []string
	WithImage bool
	Source    bool
	More      bool
	Persona   corpus.Persona
}

// Composition is the provider-independent prompt of one item.
type Composition struct {
	Text      string
	ImageName string
	// CompletionStyle is the completion flag of the last rendered fragment.
	CompletionStyle bool
}

// Composer builds prompts from the corpus.
type Composer struct {
	News      *corpus.News
	Dialogs   *corpus.Dialogs
	Whitelist corpus.Whitelist
	Images    *corpus.Images
	// Detail is forwarded with inline images. Empty means DefaultDetail.
	Detail string
}

// Compose concatenates the pre fragments, the annotated item text and the
// post fragments. Each fragment is followed by a single space.
func (c *Composer) Compose(itemID string, opts Options) (Composition, error) {
	item, err := c.News.Get(itemID)
	if err != nil {
		return Composition{}, err
	}

	persona, err := c.personaText(opts.Persona)
	if err != nil {
		return Composition{}, err
	}

	var (
		b    strings.Builder
		comp Composition
	)
	render := func(ids []string) error {
		for _, id := range ids {
			if id == "" {
				continue
			}
			d, err := c.Dialogs.Get(id)
			if err != nil {
				return err
			}
			b.WriteString(strings.ReplaceAll(d.Text(opts.WithImage), corpus.PersonaSlot, persona))
			b.WriteString(" ")
			comp.CompletionStyle = d.CompletionMode
		}
		return nil
	}

	if err := render(opts.Pre); err != nil {
		return Composition{}, err
	}
	b.WriteString("\n")
	b.WriteString(item.Text(opts.Source, opts.More))
	b.WriteString("\n")
	if err := render(opts.Post); err != nil {
		return Composition{}, err
	}

	comp.Text = b.String()
	if opts.WithImage {
		comp.ImageName = item.Image
	}
	return comp, nil
}

func (c *Composer) personaText(p corpus.Persona) (string, error) {
	if len(p) == 0 {
		return "", nil
	}
	if err := c.Whitelist.Validate(p); err != nil {
		return "", err
	}
	d, err := c.Dialogs.Get(corpus.PersonaDialogID)
	if err != nil {
		return "", fmt.Errorf("persona requested: %w", err)
	}
	return p.Fill(d.Content)
}

// Render shapes a composition for the given model.
func (c *Composer) Render(comp Composition, m models.Resolved, withImage bool) (*Request, error) {
	req := &Request{Dialect: m.Dialect, ImageName: comp.ImageName}

	switch m.ImageMode() {
	case models.ImageIgnored:
		req.Text = comp.Text
		return req, nil

	case models.ImageReference:
		img, err := c.referenceImage(comp, m, withImage)
		if err != nil {
			return nil, err
		}
		req.Image = img
		if m.Dialect == models.DialectCompletion {
			req.Text = comp.Text
			return req, nil
		}
		parts := []Part{{Kind: PartText, Text: comp.Text}}
		if img != nil {
			parts = append(parts, Part{Kind: PartImageRef})
		}
		req.Turns = []Turn{{Role: RoleUser, Parts: parts}}

	default:
		img, err := c.inlineImage(comp, m, withImage)
		if err != nil {
			return nil, err
		}
		parts := []Part{{Kind: PartText, Text: comp.Text}}
		if img != nil {
			parts = append(parts, Part{Kind: PartImage, Image: img, Detail: c.detail()})
		}
		req.Turns = []Turn{{Role: RoleUser, Parts: parts}}
	}

	if comp.CompletionStyle && m.HonorsAssistantPrefill() {
		req.Turns = append(req.Turns, Turn{Role: RoleAssistant, Parts: []Part{{Kind: PartText}}})
	}
	return req, nil
}

func (c *Composer) detail() string {
	if c.Detail == "" {
		return DefaultDetail
	}
	return c.Detail
}

func (c *Composer) inlineImage(comp Composition, m models.Resolved, withImage bool) (*corpus.Image, error) {
	if withImage {
		img, err := c.Images.Read(comp.ImageName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
		}
		return img, nil
	}
	if m.BlankImage() {
		return c.Images.Blank()
	}
	return nil, nil
}

// referenceImage tolerates a missing image for models that can work without one.
func (c *Composer) referenceImage(comp Composition, m models.Resolved, withImage bool) (*corpus.Image, error) {
	requires := m.Local != nil && m.Local.RequiresImage
	if withImage {
		img, err := c.Images.Read(comp.ImageName)
		if err == nil {
			return img, nil
		}
		if requires {
			return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
		}
		logging.Warn("image unreadable, prompting without it", "image", comp.ImageName, "error", err)
		return nil, nil
	}
	if requires || m.BlankImage() {
		return c.Images.Blank()
	}
	return nil, nil
}
