package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestRegistryPageBindingsWinOverGlobal(t *testing.T) {
	r := NewRegistry()
	var hit string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'r', Description: "r:global", Handler: func() { hit = "global" }})
	r.AddPage("list", &Action{Key: tcell.KeyRune, Rune: 'r', Description: "r:refresh", Handler: func() { hit = "page" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)
	if !r.HandleEvent("list", ev) || hit != "page" {
		t.Fatalf("list page: hit = %q", hit)
	}
	if !r.HandleEvent("chat", ev) || hit != "global" {
		t.Fatalf("chat page: hit = %q", hit)
	}
	if r.HandleEvent("chat", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Fatal("unbound key handled")
	}
}

func TestRegistryHintsOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit"})
	r.AddPage("list", &Action{Key: tcell.KeyRune, Rune: '/', Description: "/:filter"})
	r.AddPage("list", &Action{Key: tcell.KeyEscape})

	if got, want := r.Hints("list"), "/:filter  q:quit"; got != want {
		t.Errorf("Hints = %q, want %q", got, want)
	}
}
