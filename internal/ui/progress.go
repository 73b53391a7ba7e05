package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"

	"newsbench/internal/experiment"
)

// Progress draws a one-line progress bar per pass. It only writes carriage
// returns and newlines, so it needs a terminal but no event loop.
type Progress struct {
	mu     sync.Mutex
	w      io.Writer
	bar    progress.Model
	styles *Styles

	label    string
	start    time.Time
	warnings int
	active   bool
}

// NewProgress creates a progress bar of the given width writing to w.
func NewProgress(w io.Writer, width int) *Progress {
	if width <= 0 {
		width = 40
	}
	return &Progress{
		w:      w,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(width)),
		styles: DefaultStyles(),
	}
}

// StartPass begins a new bar; pending items are the ones still to process.
func (p *Progress) StartPass(variant int, pass experiment.Pass, pending, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked()
	p.label = fmt.Sprintf("run %d %s", variant, pass)
	p.start = time.Now()
	p.warnings = 0
	p.active = true
	p.drawLocked(total-pending, total, "")
}

// Update redraws the bar after an item.
func (p *Progress) Update(u experiment.ProgressUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	p.warnings += len(u.Warnings)
	p.drawLocked(u.Completed, u.Total, u.ItemID)
	if u.Completed >= u.Total {
		p.endLocked()
	}
}

// Finish terminates the current bar line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked()
}

func (p *Progress) drawLocked(done, total int, item string) {
	pct := 1.0
	if total > 0 {
		pct = float64(done) / float64(total)
	}
	line := fmt.Sprintf("\r%s %s %s",
		p.styles.Label.Render(p.label),
		p.bar.ViewAs(pct),
		p.styles.Value.Render(fmt.Sprintf("%d/%d", done, total)))
	if item != "" {
		line += " " + p.styles.Dim.Render(item)
	}
	if p.warnings > 0 {
		line += " " + p.styles.Warning.Render(fmt.Sprintf("%s %d", MessageIcons["warning"], p.warnings))
	}
	fmt.Fprint(p.w, line+"\x1b[K")
}

func (p *Progress) endLocked() {
	if !p.active {
		return
	}
	p.active = false
	fmt.Fprintf(p.w, " %s\n", p.styles.Dim.Render(FormatDuration(time.Since(p.start))))
}
