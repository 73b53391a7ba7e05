package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"newsbench/internal/checkpoint"
	"newsbench/internal/classify"
	"newsbench/internal/config"
	"newsbench/internal/prompt"
)

var (
	rule     = strings.Repeat("=", 60)
	thinRule = strings.Repeat("-", 60)
)

// Header identifies the invocation at the top of log.txt.
type Header struct {
	Command string
	Host    string
	Config  string
}

// NewHeader describes the current process running cfg.
func NewHeader(cfg *config.Config) Header {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return Header{
		Command: strings.Join(os.Args, " "),
		Host:    host,
		Config:  cfg.Dump(),
	}
}

// LogOptions control how the transcript is written.
type LogOptions struct {
	// Completion is set for completion-dialect models, whose prompts are a
	// single string without roles.
	Completion bool
	// Classifier recomputes the warnings of each item.
	Classifier classify.Classifier
}

// WriteLog writes the header, the statistics table and the transcript of
// every processed item. Check runs list the answers instead of the table.
func WriteLog(w io.Writer, h Header, t *Table, snap *checkpoint.Snapshot, opts LogOptions) error {
	var b strings.Builder
	writeHeader(&b, h)

	check := config.Experiment(snap.Fingerprint.Experiment) == config.ExperimentCheckNews
	if check {
		if p := snap.NoImage; p != nil {
			for i, id := range p.Done {
				fmt.Fprintf(&b, "%s\t%s\n", id, p.Scores[i].Answer)
			}
		}
	} else if t != nil {
		b.WriteString(t.Aligned())
	}

	b.WriteString("\n" + rule + "\n")
	for _, p := range []*checkpoint.PassState{snap.NoImage, snap.WithImage} {
		if p == nil {
			continue
		}
		for i, id := range p.Done {
			writeItem(&b, id, p.ImageNames[i], p.Prompts[i], p.Completions[i], opts, check)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeHeader(b *strings.Builder, h Header) {
	b.WriteString(rule + "\n\n")
	b.WriteString("executing:\n" + h.Command)
	b.WriteString("\non host " + h.Host + "\n\n")
	b.WriteString(rule + "\n\n")
	b.WriteString(h.Config)
	b.WriteString("\n" + rule + "\n\n")
}

func writeItem(b *strings.Builder, id, image string, transcript prompt.Transcript, completions []string, opts LogOptions, check bool) {
	if image != "" {
		fmt.Fprintf(b, "\n-------------- News %s with image %s ---------------\n\n", id, image)
	} else {
		fmt.Fprintf(b, "\n---------------- News %s with no image -------------------\n\n", id)
	}

	if opts.Completion {
		text := ""
		if len(transcript) > 0 {
			text = transcript[0].Content
		}
		fmt.Fprintf(b, "PROMPT:\n%s\n\n", text)
	} else {
		for _, m := range transcript {
			fmt.Fprintf(b, "ROLE: %s\n", m.Role)
			fmt.Fprintf(b, "PROMPT:\n%s\n\n", m.Content)
		}
	}

	for i, c := range completions {
		b.WriteString(thinRule + "\n\n")
		fmt.Fprintf(b, "COMPLETION #%d:\n%s\n\n", i, c)
	}

	if !check {
		if _, warnings := opts.Classifier.Classify(completions); len(warnings) > 0 {
			b.WriteString(thinRule + "\n\n")
			for _, w := range warnings {
				fmt.Fprintf(b, "WARNING: %s\n", w)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString(rule + "\n")
}
