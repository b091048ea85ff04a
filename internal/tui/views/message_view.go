package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/collab/internal/protocol"
	"github.com/matheus3301/collab/internal/tui/ui"
)

// MessageView displays the log of the open conversation.
type MessageView struct {
	*tview.TextView
	self string
	peer string
}

// NewMessageView creates a new message view for the local user self.
func NewMessageView(theme *ui.Theme, self string) *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	theme.Frame(tv.Box, " Messages ")

	return &MessageView{TextView: tv, self: self}
}

// SetPeer updates the title with the peer's id.
func (mv *MessageView) SetPeer(peer string, typing bool) {
	mv.peer = peer
	title := fmt.Sprintf(" %s ", tview.Escape(peer))
	if typing {
		title = fmt.Sprintf(" %s [::i]typing…[::-] ", tview.Escape(peer))
	}
	mv.SetTitle(title)
}

// Update re-renders the log, oldest first.
func (mv *MessageView) Update(msgs []protocol.Message) {
	mv.Clear()
	now := time.Now()
	for _, m := range msgs {
		_, _ = fmt.Fprint(mv, formatMessage(m, mv.self, now))
	}
	mv.ScrollToEnd()
}
