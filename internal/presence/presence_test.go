package presence

import (
	"sort"
	"testing"
	"time"

	"github.com/matheus3301/collab/internal/chaterr"
	"github.com/matheus3301/collab/internal/protocol"
)

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

type fakeClock struct {
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.now += d
	sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at < c.timers[j].at })
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			t.f()
		}
	}
}

func inline(f func()) bool {
	f()
	return true
}

type recorder struct {
	sent []protocol.Envelope
	err  error
}

func (r *recorder) Send(env protocol.Envelope) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, env)
	return nil
}

func (r *recorder) kinds() []protocol.Kind {
	var out []protocol.Kind
	for _, e := range r.sent {
		out = append(out, e.Type)
	}
	return out
}

func TestTypingBurstEmitsOnePair(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	typing := NewTyping("user_1", "user_2", time.Second, rec, clock, inline, nil)

	// Ten keystrokes, 100ms apart, all inside one idle window.
	for n := 0; n < 10; n++ {
		typing.NotifyTyping()
		clock.Advance(100 * time.Millisecond)
	}
	if got := rec.kinds(); len(got) != 1 || got[0] != protocol.KindTyping {
		t.Fatalf("during burst sent %v, want [typing]", got)
	}

	clock.Advance(999 * time.Millisecond)
	got := rec.kinds()
	if len(got) != 2 || got[1] != protocol.KindStopTyping {
		t.Fatalf("after idle sent %v, want [typing stopTyping]", got)
	}
	if typing.Active() {
		t.Error("Active() = true after idle window")
	}

	var sig protocol.Typing
	if err := rec.sent[0].Decode(&sig); err != nil {
		t.Fatal(err)
	}
	if sig.SenderID != "user_1" || sig.ReceiverID != "user_2" {
		t.Errorf("typing payload = %+v", sig)
	}
}

func TestTypingNewBurstAfterIdle(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	typing := NewTyping("a", "b", time.Second, rec, clock, inline, nil)

	typing.NotifyTyping()
	clock.Advance(2 * time.Second)
	typing.NotifyTyping()
	clock.Advance(2 * time.Second)

	want := []protocol.Kind{protocol.KindTyping, protocol.KindStopTyping, protocol.KindTyping, protocol.KindStopTyping}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sent[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestTypingStopEmitsOnlyWhenActive(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	typing := NewTyping("a", "b", 0, rec, clock, inline, nil)

	typing.Stop()
	if len(rec.sent) != 0 {
		t.Fatalf("Stop() on idle debouncer sent %v", rec.kinds())
	}
	typing.NotifyTyping()
	typing.Stop()
	clock.Advance(DefaultIdle * 2)
	if got := rec.kinds(); len(got) != 2 || got[1] != protocol.KindStopTyping {
		t.Errorf("sent %v, want [typing stopTyping]", got)
	}
}

// TestTypingOfflineDoesNotSpin verifies a burst typed while disconnected does
// not try to re-send typing on every keystroke.
func TestTypingOfflineDoesNotSpin(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{err: chaterr.ErrNotConnected}
	typing := NewTyping("a", "b", time.Second, rec, clock, inline, nil)

	typing.NotifyTyping()
	typing.NotifyTyping()
	if !typing.Active() {
		t.Error("Active() = false, want true while burst in progress")
	}
}

func TestPeerTyping(t *testing.T) {
	clock := &fakeClock{}
	var flips []bool
	p := NewPeerTyping("user_2", 5*time.Second, clock, inline, func(v bool) { flips = append(flips, v) })

	p.Observe(protocol.KindTyping, "user_3")
	if p.Typing() {
		t.Fatal("flag set by a foreign user")
	}

	p.Observe(protocol.KindTyping, "user_2")
	p.Observe(protocol.KindTyping, "user_2")
	if !p.Typing() {
		t.Fatal("flag not set by peer typing")
	}
	p.Observe(protocol.KindStopTyping, "user_2")
	if p.Typing() {
		t.Fatal("flag not cleared by stopTyping")
	}
	if len(flips) != 2 {
		t.Errorf("onChange called %d times, want 2", len(flips))
	}
}

func TestPeerTypingExpires(t *testing.T) {
	clock := &fakeClock{}
	p := NewPeerTyping("user_2", 5*time.Second, clock, inline, nil)

	p.Observe(protocol.KindTyping, "user_2")
	clock.Advance(3 * time.Second)
	// Re-armed by a second typing signal.
	p.Observe(protocol.KindTyping, "user_2")
	clock.Advance(3 * time.Second)
	if !p.Typing() {
		t.Fatal("flag expired early")
	}
	clock.Advance(3 * time.Second)
	if p.Typing() {
		t.Fatal("flag did not expire")
	}
}

func TestPeerTypingClearedByMessage(t *testing.T) {
	clock := &fakeClock{}
	p := NewPeerTyping("user_2", 0, clock, inline, nil)
	p.Observe(protocol.KindTyping, "user_2")
	p.Clear()
	if p.Typing() {
		t.Error("Clear() left flag set")
	}
	clock.Advance(PeerExpiry)
	if p.Typing() {
		t.Error("stale expiry flipped flag")
	}
}

func TestSeenAckOncePerMessage(t *testing.T) {
	rec := &recorder{}
	seen := NewSeen("user_2", rec, nil)
	m := protocol.Message{ID: "m100", SenderID: "user_1", ReceiverID: "user_2", Content: "hi"}

	for n := 0; n < 3; n++ {
		seen.MarkVisible(m)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("sent %d acks, want 1", len(rec.sent))
	}
	var req protocol.SeenRequest
	if err := rec.sent[0].Decode(&req); err != nil {
		t.Fatal(err)
	}
	if req.MessageID != "m100" || req.UserID != "user_2" {
		t.Errorf("ack = %+v, want {m100 user_2}", req)
	}
	if !seen.Acked("m100") {
		t.Error("Acked(m100) = false")
	}
}

func TestSeenSkipsOwnAndProvisional(t *testing.T) {
	rec := &recorder{}
	seen := NewSeen("user_2", rec, nil)

	if seen.MarkVisible(protocol.Message{ID: "m1", SenderID: "user_2", ReceiverID: "user_1"}) {
		t.Error("acknowledged own message")
	}
	if seen.MarkVisible(protocol.Message{ClientID: "tmp-1", SenderID: "user_1", ReceiverID: "user_2"}) {
		t.Error("acknowledged message without durable id")
	}
	if len(rec.sent) != 0 {
		t.Errorf("sent %v", rec.kinds())
	}
}

func TestSeenRetriesAfterFailedSend(t *testing.T) {
	rec := &recorder{err: chaterr.ErrNotConnected}
	seen := NewSeen("user_2", rec, nil)
	m := protocol.Message{ID: "m1", SenderID: "user_1", ReceiverID: "user_2"}

	if seen.MarkVisible(m) {
		t.Fatal("MarkVisible() = true on failed send")
	}
	rec.err = nil
	if !seen.MarkVisible(m) {
		t.Fatal("MarkVisible() = false after reconnect")
	}
	if seen.MarkVisible(m) {
		t.Fatal("second ack emitted")
	}
}
