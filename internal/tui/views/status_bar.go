package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/collab/internal/status"
	"github.com/matheus3301/collab/internal/tui/ui"
)

// StatusBar displays the user, the connection state and flash messages.
type StatusBar struct {
	*tview.TextView
	user  string
	state status.State
	hints string
	flash string
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.StatusBar)

	return &StatusBar{TextView: tv, state: status.Disconnected}
}

// SetUser updates the local user display.
func (sb *StatusBar) SetUser(id string) {
	sb.user = id
	sb.render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(s status.State) {
	sb.state = s
	sb.render()
}

// SetHints shows the key hints of the current page.
func (sb *StatusBar) SetHints(h string) {
	sb.hints = h
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-] | %s",
		tview.Escape(sb.user), stateColor(sb.state), sb.state, time.Now().Format("15:04"))
	if sb.hints != "" {
		line += " | [::d]" + sb.hints + "[-:-:-]"
	}
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", tview.Escape(sb.flash))
	}
	_, _ = fmt.Fprint(sb, line)
}
