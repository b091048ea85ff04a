package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what a submitted line means.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
)

// Prompt is the ':' command and '/' filter bar. Submitted commands are
// kept in a history recalled with the arrow keys.
type Prompt struct {
	*tview.InputField
	mode     PromptMode
	history  *History
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates the prompt bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	theme.Frame(input.Box, "")
	input.SetFieldBackgroundColor(theme.Background)
	input.SetFieldTextColor(theme.Text)
	input.SetLabelColor(theme.Accent)

	p := &Prompt{InputField: input, history: NewHistory(50)}

	input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if p.mode != PromptCommand {
			return ev
		}
		switch ev.Key() {
		case tcell.KeyUp:
			p.SetText(p.history.Prev())
			return nil
		case tcell.KeyDown:
			p.SetText(p.history.Next())
			return nil
		}
		return ev
	})

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := p.GetText()
			p.SetText("")
			if text == "" {
				if p.onCancel != nil {
					p.onCancel()
				}
				return
			}
			if p.mode == PromptCommand {
				p.history.Add(text)
			}
			if p.onSubmit != nil {
				p.onSubmit(p.mode, text)
			}
		case tcell.KeyEscape:
			p.SetText("")
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})

	return p
}

// SetOnSubmit sets the callback for a non-empty line.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel sets the callback for Escape or an empty line.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// Activate clears the bar and switches it to mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.SetText("")
	p.history.Reset()
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
		p.SetPlaceholder("open <user> | close | refresh | quit")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter ")
		p.SetPlaceholder("peer or campaign")
	}
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}

// History is a bounded list of submitted lines with a recall cursor.
type History struct {
	lines []string
	max   int
	pos   int
}

// NewHistory keeps at most max lines.
func NewHistory(max int) *History {
	return &History{max: max}
}

// Add appends line unless it repeats the last one, and resets the cursor.
func (h *History) Add(line string) {
	if n := len(h.lines); n == 0 || h.lines[n-1] != line {
		h.lines = append(h.lines, line)
		if len(h.lines) > h.max {
			h.lines = h.lines[len(h.lines)-h.max:]
		}
	}
	h.Reset()
}

// Reset moves the cursor past the newest line.
func (h *History) Reset() {
	h.pos = len(h.lines)
}

// Prev steps back and returns the line under the cursor.
func (h *History) Prev() string {
	if len(h.lines) == 0 {
		return ""
	}
	if h.pos > 0 {
		h.pos--
	}
	return h.lines[h.pos]
}

// Next steps forward; past the newest line it returns "".
func (h *History) Next() string {
	if h.pos < len(h.lines) {
		h.pos++
	}
	if h.pos == len(h.lines) {
		return ""
	}
	return h.lines[h.pos]
}
