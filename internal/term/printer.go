// Package term renders a chat transcript to a terminal.
package term

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/RichardoC/aura/internal/models"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	systemStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("246"))
	fileStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("118"))
	dimStyle       = lipgloss.NewStyle().Faint(true)
)

type Options struct {
	// Markdown renders assistant replies with glamour.
	Markdown bool
	Width    int
	// Style is a glamour standard style name such as "dark" or "light".
	Style string
}

// Printer writes transcript entries as they happen. It is safe for concurrent use.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
	md *glamour.TermRenderer
}

func NewPrinter(w io.Writer, opts Options) (*Printer, error) {
	p := &Printer{w: w}
	if opts.Markdown {
		if opts.Width <= 0 {
			opts.Width = 80
		}
		if opts.Style == "" {
			opts.Style = "dark"
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(opts.Style),
			glamour.WithWordWrap(opts.Width),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		p.md = r
	}
	return p, nil
}

func (p *Printer) Append(m models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.print(m)
}

func (p *Printer) Replay(msgs []models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		p.print(m)
	}
}

func (p *Printer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, dimStyle.Render("--- new conversation ---"))
}

func (p *Printer) SetBusy(busy bool) {
	if !busy {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, dimStyle.Render("AURA is typing..."))
}

func (p *Printer) print(m models.Message) {
	fmt.Fprintln(p.w, Format(m, p.md))
}

// Format renders one message. md may be nil for plain text.
func Format(m models.Message, md *glamour.TermRenderer) string {
	if f, ok := models.ParseFileMarker(m.Text); ok {
		return fileStyle.Render(FileLabel(f))
	}
	switch m.Role {
	case models.RoleUser:
		return userStyle.Render("You:") + " " + m.Text
	case models.RoleSystem:
		return systemStyle.Render(m.Text)
	}
	text := m.Text
	if md != nil {
		if out, err := md.Render(text); err == nil {
			return assistantStyle.Render("AURA:") + "\n" + strings.TrimRight(out, "\n")
		}
	}
	return assistantStyle.Render("AURA:") + " " + text
}

func FileLabel(f models.FileAttachment) string {
	label := fmt.Sprintf("[file] %s (%s", f.Name, humanize.IBytes(uint64(f.Size)))
	if f.MimeType != "" {
		label += ", " + f.MimeType
	}
	return label + ")"
}
