package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/term"
)

// progressPrinter shows the state of a running restore on w. On a terminal
// a single status line is rewritten in place; otherwise only status messages
// are written, one per line, skipping repeats.
type progressPrinter struct {
	mu  sync.Mutex
	w   io.Writer
	tty bool
	fd  int

	folder           string
	processedFolders int
	processedFiles   int
	recoveredFolders int
	recoveredFiles   int
	status           string

	lastLen int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	p := &progressPrinter{w: w}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
		p.fd = int(f.Fd())
	}
	return p
}

func (p *progressPrinter) CurrentFolder(path string) {
	p.update(func() { p.folder = path })
}

func (p *progressPrinter) ProcessedFolders(n int) {
	p.update(func() { p.processedFolders = max(p.processedFolders, n) })
}

func (p *progressPrinter) ProcessedFiles(n int) {
	p.update(func() { p.processedFiles = max(p.processedFiles, n) })
}

func (p *progressPrinter) RecoveredFolders(n int) {
	p.update(func() { p.recoveredFolders = max(p.recoveredFolders, n) })
}

func (p *progressPrinter) RecoveredFiles(n int) {
	p.update(func() { p.recoveredFiles = max(p.recoveredFiles, n) })
}

func (p *progressPrinter) Status(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.tty {
		if msg != p.status {
			fmt.Fprintln(p.w, msg)
		}
		p.status = msg
		return
	}
	p.status = msg
	p.render()
}

// Done ends the status line.
func (p *progressPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tty && p.lastLen > 0 {
		fmt.Fprintln(p.w)
		p.lastLen = 0
	}
}

func (p *progressPrinter) update(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn()
	if p.tty {
		p.render()
	}
}

func (p *progressPrinter) line() string {
	s := fmt.Sprintf("processed %d folders, %d files | recovered %d folders, %d files",
		p.processedFolders, p.processedFiles, p.recoveredFolders, p.recoveredFiles)
	if p.status != "" {
		s += " | " + p.status
	}
	if p.folder != "" {
		s += " | " + p.folder
	}
	return s
}

// clip shortens s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// render must be called with mu held.
func (p *progressPrinter) render() {
	s := p.line()
	if width, _, err := term.GetSize(p.fd); err == nil && width > 1 {
		s = clip(s, width-1)
	}
	pad := ""
	if n := p.lastLen - len(s); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprint(p.w, "\r"+s+pad)
	p.lastLen = len(s)
}
