package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Theme is the palette shared by every widget.
type Theme struct {
	Background tcell.Color
	Text       tcell.Color
	Border     tcell.Color
	Title      tcell.Color
	Accent     tcell.Color
	Header     tcell.Color
	StatusBar  tcell.Color
	Cursor     tcell.Style
}

// DefaultTheme is a dark palette with blue frames.
func DefaultTheme() *Theme {
	return &Theme{
		Background: tcell.ColorBlack,
		Text:       tcell.ColorCadetBlue,
		Border:     tcell.ColorDodgerBlue,
		Title:      tcell.ColorFuchsia,
		Accent:     tcell.ColorDodgerBlue,
		Header:     tcell.ColorWhite,
		StatusBar:  tcell.ColorNavy,
		Cursor:     tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorAqua),
	}
}

// Frame draws a titled border around box in the theme's colors.
func (t *Theme) Frame(box *tview.Box, title string) {
	box.SetBorder(true).
		SetBorderColor(t.Border).
		SetBackgroundColor(t.Background).
		SetTitle(title).
		SetTitleColor(t.Title)
}
