package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/collab/internal/protocol"
	"github.com/matheus3301/collab/internal/status"
)

func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now = now.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// deliveryMarker renders the sender-side receipt state of an outgoing message.
func deliveryMarker(m protocol.Message) string {
	if !m.Confirmed() {
		return "[gray]…[-]"
	}
	switch m.DeliveryState {
	case protocol.StateSeen:
		return "[aqua]✓✓[-]"
	case protocol.StateDelivered:
		return "✓✓"
	default:
		return "✓"
	}
}

// formatMessage renders one log entry for a TextView with dynamic colors.
func formatMessage(m protocol.Message, self string, now time.Time) string {
	sender := m.SenderID
	marker := ""
	if m.SenderID == self {
		sender = "You"
		marker = " " + deliveryMarker(m)
	}
	body := tview.Escape(sanitizeForTerminal(m.Content))
	return fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
		tview.Escape(sender), formatTimestamp(m.CreatedAt, now), marker, body)
}

func stateColor(s status.State) string {
	switch s {
	case status.Connected:
		return "green"
	case status.Connecting, status.Reconnecting:
		return "yellow"
	case status.AuthRequired:
		return "red"
	default:
		return "gray"
	}
}

// preview flattens a message body to one line of at most n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(sanitizeForTerminal(s)), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
