package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
)

// progressPrinter renders run progress. On a terminal it redraws a single
// line; otherwise it prints one line per update.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	tty     bool
	width   int
	lastLen int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	p := &progressPrinter{w: w}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			p.width = width
		}
	}
	return p
}

// Update implements the batch.Progress callback.
func (p *progressPrinter) Update(s batch.ProgressSnapshot) {
	line := formatProgress(s)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.tty {
		fmt.Fprintln(p.w, line)
		return
	}
	if p.width > 0 {
		line = truncate(line, p.width-1)
	}
	pad := ""
	if n := p.lastLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprint(p.w, "\r"+line+pad)
	p.lastLen = len(line)
}

// Warn prints a warning on its own line.
func (p *progressPrinter) Warn(e batch.WarningEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.lastLen > 0 {
		fmt.Fprintln(p.w)
		p.lastLen = 0
	}
	if p.tty {
		fmt.Fprintf(p.w, "\033[33mWarning:\033[0m %s\n", e.Message)
		return
	}
	fmt.Fprintf(p.w, "Warning: %s\n", e.Message)
}

// Done ends the progress line.
func (p *progressPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.lastLen > 0 {
		fmt.Fprintln(p.w)
		p.lastLen = 0
	}
}

func formatProgress(s batch.ProgressSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d] %5.1f%%  found %d  not found %d  blocked %d  errors %d",
		s.Processed, s.Total, s.PercentComplete(), s.Found, s.NotFound, s.Blocked, s.Failed)
	if s.EstimatedRemainingSeconds != nil && !s.IsComplete() {
		eta := time.Duration(*s.EstimatedRemainingSeconds * float64(time.Second)).Round(time.Second)
		fmt.Fprintf(&b, "  eta %s", eta)
	}
	return b.String()
}
