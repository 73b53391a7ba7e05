// Package models is the static catalog of language models an experiment can
// target. Lookup resolves an identifier once into its wire dialect and
// provider family; nothing downstream inspects model names again.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownModel is returned for identifiers that are not in the catalog.
	ErrUnknownModel = errors.New("unknown model")
	// ErrUnknownDirective is returned for an unrecognized "+directive" suffix.
	ErrUnknownDirective = errors.New("unknown model directive")
)

// DirectiveSeparator splits a model identifier from its rendering directives.
const DirectiveSeparator = "+"

// Directive is an extra rendering instruction carried by a model identifier.
type Directive string

const (
	// DirectiveBlankImage attaches a synthesized blank image to text-only prompts.
	DirectiveBlankImage Directive = "blank_img"
)

var knownDirectives = map[Directive]bool{
	DirectiveBlankImage: true,
}

// Dialect is the request shape a model expects.
type Dialect string

const (
	DialectChat       Dialect = "chat"
	DialectCompletion Dialect = "cmpl"
)

// Family is the provider family that serves a model.
type Family string

const (
	FamilyNone      Family = "none"
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyGemini    Family = "gemini"
	FamilyLocal     Family = "local"
)

// ImageMode describes how a model receives the image of an item.
type ImageMode int

const (
	// ImageIgnored drops the image entirely.
	ImageIgnored ImageMode = iota
	// ImageInline embeds the encoded image in the structured content.
	ImageInline
	// ImageReference puts a placeholder in the content and ships the image out of band.
	ImageReference
)

func (m ImageMode) String() string {
	switch m {
	case ImageInline:
		return "inline"
	case ImageReference:
		return "reference"
	default:
		return "ignored"
	}
}

// LocalProfile holds per-model limits of a locally served model.
type LocalProfile struct {
	// Tag is the name the local server knows the model by.
	Tag string
	// SampleCeiling is the largest sample count one generation call may ask for.
	SampleCeiling int
	// EchoDelimiter separates the echoed prompt from the reply in raw output.
	EchoDelimiter string
	// StripPrompt removes a verbatim copy of the prompt from the output.
	StripPrompt bool
	// RequiresImage means the model cannot be prompted without an image.
	RequiresImage bool
	// NoPrefill drops the empty assistant turn of completion-style prompts.
	NoPrefill bool
}

// Model is one catalog entry.
type Model struct {
	ID        string
	ShortName string
	Dialect   Dialect
	Family    Family
	Local     *LocalProfile
}

// ImageMode returns how the model receives images.
func (m Model) ImageMode() ImageMode {
	if m.Dialect == DialectCompletion && m.Family != FamilyLocal {
		return ImageIgnored
	}
	switch m.Family {
	case FamilyLocal:
		return ImageReference
	default:
		return ImageInline
	}
}

// HonorsAssistantPrefill reports whether a trailing empty assistant turn
// makes the model continue the text instead of starting over.
func (m Model) HonorsAssistantPrefill() bool {
	switch m.Family {
	case FamilyAnthropic, FamilyGemini:
		return false
	case FamilyLocal:
		return m.Local == nil || !m.Local.NoPrefill
	default:
		return true
	}
}

// Catalog lists the available models. The first entry is the default.
var Catalog = []Model{
	{ID: "no-model", ShortName: "none", Dialect: DialectChat, Family: FamilyNone},

	// OpenAI
	{ID: "gpt-3.5-turbo-instruct", ShortName: "gpt35i", Dialect: DialectCompletion, Family: FamilyOpenAI},
	{ID: "gpt-3.5-turbo", ShortName: "gpt35", Dialect: DialectChat, Family: FamilyOpenAI},
	{ID: "gpt-4", ShortName: "gpt4", Dialect: DialectChat, Family: FamilyOpenAI},
	{ID: "gpt-4-vision-preview", ShortName: "gpt4v", Dialect: DialectChat, Family: FamilyOpenAI},
	{ID: "gpt-4o-2024-05-13", ShortName: "gpt4o0513", Dialect: DialectChat, Family: FamilyOpenAI},
	{ID: "gpt-4o", ShortName: "gpt4o", Dialect: DialectChat, Family: FamilyOpenAI},
	{ID: "gpt-4o-mini", ShortName: "gpt4om", Dialect: DialectChat, Family: FamilyOpenAI},

	// Local models served by Ollama
	{ID: "llava-hf/llava-v1.6-mistral-7b-hf", ShortName: "ll167b", Dialect: DialectChat, Family: FamilyLocal,
		Local: &LocalProfile{Tag: "llava:7b-v1.6-mistral-q4_0", SampleCeiling: 50, EchoDelimiter: "[/INST]", RequiresImage: true, NoPrefill: true}},
	{ID: "facebook/chameleon-7b", ShortName: "cham7b", Dialect: DialectCompletion, Family: FamilyLocal,
		Local: &LocalProfile{Tag: "chameleon:7b", SampleCeiling: 50, StripPrompt: true, NoPrefill: true}},
	{ID: "Qwen/Qwen2-VL-2B-Instruct", ShortName: "qwen2b", Dialect: DialectChat, Family: FamilyLocal,
		Local: &LocalProfile{Tag: "qwen2-vl:2b-instruct", SampleCeiling: 1, EchoDelimiter: "\nassistant\n"}},
	{ID: "Qwen/Qwen2-VL-7B-Instruct", ShortName: "qwen7b", Dialect: DialectChat, Family: FamilyLocal,
		Local: &LocalProfile{Tag: "qwen2-vl:7b-instruct", SampleCeiling: 1, EchoDelimiter: "\nassistant\n"}},
	{ID: "google/gemma-3-4b-it", ShortName: "gem4b", Dialect: DialectChat, Family: FamilyLocal,
		Local: &LocalProfile{Tag: "gemma3:4b", SampleCeiling: 50}},
	{ID: "google/gemma-3-12b-it", ShortName: "gem12b", Dialect: DialectChat, Family: FamilyLocal,
		Local: &LocalProfile{Tag: "gemma3:12b", SampleCeiling: 50}},

	// Anthropic
	{ID: "claude-3-haiku-20240307", ShortName: "cl3h", Dialect: DialectChat, Family: FamilyAnthropic},
	{ID: "claude-3-5-haiku-20241022", ShortName: "cl3.5h", Dialect: DialectChat, Family: FamilyAnthropic},
	{ID: "claude-3-5-sonnet-20240620", ShortName: "cl3.5s", Dialect: DialectChat, Family: FamilyAnthropic},
	{ID: "claude-3-7-sonnet-20250219", ShortName: "cl3.7s", Dialect: DialectChat, Family: FamilyAnthropic},
	{ID: "claude-3-opus-20240229", ShortName: "cl3o", Dialect: DialectChat, Family: FamilyAnthropic},

	// Gemini
	{ID: "gemini-2.0-flash", ShortName: "gem2f", Dialect: DialectChat, Family: FamilyGemini},
	{ID: "gemini-2.5-flash", ShortName: "gem25f", Dialect: DialectChat, Family: FamilyGemini},
	{ID: "gemini-2.5-pro", ShortName: "gem25p", Dialect: DialectChat, Family: FamilyGemini},
}

// Resolved is a catalog model together with the directives of the identifier
// that selected it.
type Resolved struct {
	Model
	Directives []Directive
}

// Has reports whether the directive is active.
func (r Resolved) Has(d Directive) bool {
	for _, have := range r.Directives {
		if have == d {
			return true
		}
	}
	return false
}

// BlankImage reports whether text-only prompts get a blank image.
func (r Resolved) BlankImage() bool {
	return r.Has(DirectiveBlankImage)
}

// Name is the full identifier including directives.
func (r Resolved) Name() string {
	if len(r.Directives) == 0 {
		return r.ID
	}
	parts := []string{r.ID}
	for _, d := range r.Directives {
		parts = append(parts, string(d))
	}
	return strings.Join(parts, DirectiveSeparator)
}

// Label is the short name used in statistics, with a "b" suffix for the blank image variant.
func (r Resolved) Label() string {
	if r.BlankImage() {
		return r.ShortName + "b"
	}
	return r.ShortName
}

// Lookup resolves a model identifier such as "gpt-4o-mini+blank_img". A bare
// integer selects the catalog entry at that index.
func Lookup(id string) (Resolved, error) {
	id = strings.TrimSpace(id)
	if idx, err := strconv.Atoi(id); err == nil {
		if idx < 0 || idx >= len(Catalog) {
			return Resolved{}, fmt.Errorf("%w: index %d", ErrUnknownModel, idx)
		}
		return Resolved{Model: Catalog[idx]}, nil
	}

	parts := strings.Split(id, DirectiveSeparator)
	m, ok := Get(parts[0])
	if !ok {
		return Resolved{}, fmt.Errorf("%w: %q", ErrUnknownModel, parts[0])
	}

	r := Resolved{Model: m}
	for _, p := range parts[1:] {
		d := Directive(p)
		if !knownDirectives[d] {
			return Resolved{}, fmt.Errorf("%w: %q in %q", ErrUnknownDirective, p, id)
		}
		if !r.Has(d) {
			r.Directives = append(r.Directives, d)
		}
	}
	return r, nil
}

// Get returns the catalog entry with the given base identifier.
func Get(id string) (Model, bool) {
	for _, m := range Catalog {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// ByFamily returns the catalog entries served by a family.
func ByFamily(f Family) []Model {
	var out []Model
	for _, m := range Catalog {
		if m.Family == f {
			out = append(out, m)
		}
	}
	return out
}
