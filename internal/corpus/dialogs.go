package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"
)

var (
	// ErrUnknownDialog is returned when a dialog id is not in the store.
	ErrUnknownDialog = errors.New("unknown dialog")
	// ErrInvalidPersona is returned when a demographic pair is not whitelisted.
	ErrInvalidPersona = errors.New("invalid demographic value")
)

const (
	// PersonaDialogID is the fragment filled with the demographic descriptor.
	PersonaDialogID = "content_dems"
	// PersonaSlot is replaced by the filled persona fragment.
	PersonaSlot = "{content_dems}"
	// ProfilePrefix marks the dialogs that describe a persona profile.
	ProfilePrefix = "p_"
)

// Dialog is a reusable prompt fragment.
type Dialog struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	ContentImg string `json:"content_img,omitempty"`
	// CompletionMode marks fragments the model should continue rather than answer.
	CompletionMode bool `json:"-"`
}

// Text returns the image variant when one exists and an image is shown.
func (d Dialog) Text(withImage bool) string {
	if withImage && d.ContentImg != "" {
		return d.ContentImg
	}
	return d.Content
}

// UnmarshalJSON sets CompletionMode from the mere presence of the
// "completion_mode" key, whatever its value.
func (d *Dialog) UnmarshalJSON(data []byte) error {
	type plain Dialog
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	_, p.CompletionMode = keys["completion_mode"]
	*d = Dialog(p)
	return nil
}

// Dialogs is the read-only dialog store.
type Dialogs struct {
	order []string
	byID  map[string]Dialog
}

// NewDialogs builds a store from fragments.
func NewDialogs(list []Dialog) *Dialogs {
	s := &Dialogs{byID: make(map[string]Dialog, len(list))}
	for _, d := range list {
		if _, ok := s.byID[d.ID]; !ok {
			s.order = append(s.order, d.ID)
		}
		s.byID[d.ID] = d
	}
	return s
}

// LoadDialogs reads a JSON array of dialog fragments.
func LoadDialogs(path string) (*Dialogs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dialogs: %w", err)
	}
	var list []Dialog
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse dialogs %s: %w", path, err)
	}
	return NewDialogs(list), nil
}

// Get returns the fragment with the given id.
func (s *Dialogs) Get(id string) (Dialog, error) {
	d, ok := s.byID[id]
	if !ok {
		return Dialog{}, fmt.Errorf("%w: %q", ErrUnknownDialog, id)
	}
	return d, nil
}

// Profiles returns the ids of the persona profile dialogs in file order.
func (s *Dialogs) Profiles() []string {
	var ids []string
	for _, id := range s.order {
		if strings.HasPrefix(id, ProfilePrefix) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Persona maps a demographic category to its value.
type Persona map[string]string

// Categories returns the persona categories in sorted order.
func (p Persona) Categories() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the persona as "k=v" pairs in category order.
func (p Persona) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Categories() {
		parts = append(parts, k+"="+p[k])
	}
	return strings.Join(parts, ",")
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Fill substitutes "{category}" placeholders in template. A placeholder
// naming a category the persona lacks is an error.
func (p Persona) Fill(template string) (string, error) {
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		if _, ok := p[m[1]]; !ok {
			return "", fmt.Errorf("%w: no value for {%s}", ErrInvalidPersona, m[1])
		}
	}
	pairs := make([]string, 0, 2*len(p))
	for _, k := range p.Categories() {
		pairs = append(pairs, "{"+k+"}", p[k])
	}
	return strings.NewReplacer(pairs...).Replace(template), nil
}

// Whitelist lists the admissible values of each demographic category.
type Whitelist map[string][]string

// LoadWhitelist reads the demographic whitelist JSON object.
func LoadWhitelist(path string) (Whitelist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read demographics: %w", err)
	}
	var w Whitelist
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse demographics %s: %w", path, err)
	}
	return w, nil
}

// Validate checks every pair of the persona against the whitelist.
func (w Whitelist) Validate(p Persona) error {
	for _, k := range p.Categories() {
		v := p[k]
		allowed, ok := w[k]
		if !ok || !slices.Contains(allowed, v) {
			return fmt.Errorf("%w: %s = %s", ErrInvalidPersona, k, v)
		}
	}
	return nil
}
