package views

import (
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/collab/internal/protocol"
	"github.com/matheus3301/collab/internal/tui/ui"
)

// ConversationList is the main conversation table.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	all     []protocol.ConversationSummary
	visible []protocol.ConversationSummary
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	theme.Frame(table.Box, " Conversations ")
	table.SetSelectedStyle(theme.Cursor)

	return &ConversationList{Table: table, theme: theme}
}

// SetFilter keeps only conversations whose peer or campaign contains text.
func (cl *ConversationList) SetFilter(text string) {
	cl.filter = strings.ToLower(strings.TrimSpace(text))
	cl.render()
}

// Update refreshes the list with new summaries.
func (cl *ConversationList) Update(list []protocol.ConversationSummary) {
	cl.all = list
	cl.render()
}

func (cl *ConversationList) render() {
	cl.visible = filterSummaries(cl.all, cl.filter)
	cl.Clear()

	title := " Conversations "
	if cl.filter != "" {
		title = " Conversations /" + cl.filter + " "
	}
	cl.SetTitle(title)

	header := func(col int, text string) {
		cl.SetCell(0, col, tview.NewTableCell(text).SetSelectable(false).SetTextColor(cl.theme.Header))
	}
	header(0, " PEER")
	header(1, " CAMPAIGN")
	header(2, " LAST MESSAGE")
	header(3, " TIME")

	now := time.Now()
	for i, s := range cl.visible {
		row := i + 1
		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(s.UserID)).SetMaxWidth(24).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(s.CampaignID)).SetMaxWidth(16))
		cl.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(preview(s.LastMessage, 60))).SetExpansion(3))
		cl.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(s.CreatedAt, now)).SetMaxWidth(8))
	}
	if len(cl.visible) > 0 {
		cl.Select(1, 0)
	}
}

// Selected returns the peer of the selected row, or "".
func (cl *ConversationList) Selected() string {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.visible) {
		return cl.visible[idx].UserID
	}
	return ""
}

func filterSummaries(list []protocol.ConversationSummary, filter string) []protocol.ConversationSummary {
	if filter == "" {
		return list
	}
	var out []protocol.ConversationSummary
	for _, s := range list {
		if strings.Contains(strings.ToLower(s.UserID), filter) || strings.Contains(strings.ToLower(s.CampaignID), filter) {
			out = append(out, s)
		}
	}
	return out
}
