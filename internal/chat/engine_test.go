package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/matheus3301/collab/internal/protocol"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	e := NewEngine("user_1", "user_2")
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("tmp-%d", n)
	}
	return e
}

func durable(id, clientID, from, to, content string, at time.Time) protocol.Message {
	return protocol.Message{ID: id, ClientID: clientID, SenderID: from, ReceiverID: to, Content: content, CreatedAt: at}
}

func ids(msgs []protocol.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		if m.ID != "" {
			out[i] = m.ID
		} else {
			out[i] = m.ClientID
		}
	}
	return out
}

func assertIDs(t *testing.T, e *Engine, want ...string) {
	t.Helper()
	got := ids(e.Messages())
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("log = %v, want %v", got, want)
	}
}

// TestSendHiScenario walks the canonical flow: user_1 sends "hi", the server
// persists it as m100 and both the write response and the push arrive.
func TestSendHiScenario(t *testing.T) {
	e := newTestEngine()
	p := e.AddProvisional("hi", "", t0)
	if p.ClientID != "tmp-1" || p.ID != "" || p.DeliveryState != protocol.StateNone {
		t.Fatalf("provisional = %+v", p)
	}
	assertIDs(t, e, "tmp-1")

	serverAt := t0.Add(40 * time.Millisecond)
	e.OnConfirmed(durable("m100", "tmp-1", "user_1", "user_2", "hi", serverAt))
	e.OnInboundPush(durable("m100", "tmp-1", "user_1", "user_2", "hi", serverAt))

	msgs := e.Messages()
	if len(msgs) != 1 {
		t.Fatalf("log has %d entries, want 1", len(msgs))
	}
	m := msgs[0]
	if m.ID != "m100" || !m.CreatedAt.Equal(serverAt) || m.DeliveryState != protocol.StateSent {
		t.Errorf("confirmed = %+v", m)
	}
}

func TestNoDuplicationEitherRaceOrder(t *testing.T) {
	confirm := durable("m100", "tmp-1", "user_1", "user_2", "hi", t0.Add(time.Second))
	pushNoClient := durable("m100", "", "user_1", "user_2", "hi", t0.Add(time.Second))
	relayed := durable("", "tmp-1", "user_1", "user_2", "hi", t0.Add(time.Second))

	orders := map[string][]func(*Engine){
		"write then push": {
			func(e *Engine) { e.OnConfirmed(confirm) },
			func(e *Engine) { e.OnInboundPush(pushNoClient) },
		},
		"push then write": {
			func(e *Engine) { e.OnInboundPush(pushNoClient) },
			func(e *Engine) { e.OnConfirmed(confirm) },
		},
		"write then relayed copy": {
			func(e *Engine) { e.OnConfirmed(confirm) },
			func(e *Engine) { e.OnInboundPush(relayed) },
		},
		"relayed copy then write": {
			func(e *Engine) { e.OnInboundPush(relayed) },
			func(e *Engine) { e.OnConfirmed(confirm) },
		},
		"push twice": {
			func(e *Engine) { e.OnInboundPush(confirm) },
			func(e *Engine) { e.OnInboundPush(confirm) },
			func(e *Engine) { e.OnConfirmed(confirm) },
		},
	}
	for name, steps := range orders {
		t.Run(name, func(t *testing.T) {
			e := newTestEngine()
			e.AddProvisional("hi", "", t0)
			for _, step := range steps {
				step(e)
			}
			assertIDs(t, e, "m100")
			if got := e.Messages()[0].ClientID; got != "tmp-1" {
				t.Errorf("clientId = %q, want tmp-1 kept for receipts", got)
			}
		})
	}
}

// Regression: a relayed copy without an id that arrived after the durable
// broadcast for the same clientId was appended as a second entry.
func TestRelayedCopyAfterDurableCopy(t *testing.T) {
	tests := []struct {
		name    string
		durable protocol.Message
	}{
		{"from peer", durable("m200", "c-9", "user_2", "user_1", "yo", t0)},
		{"own echo from another session", durable("m201", "c-1", "user_1", "user_2", "hey", t0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relayed := tt.durable
			relayed.ID = ""

			durableFirst := newTestEngine()
			durableFirst.OnInboundPush(tt.durable)
			if durableFirst.OnInboundPush(relayed) {
				t.Error("relayed copy after durable copy reported a change")
			}
			assertIDs(t, durableFirst, tt.durable.ID)

			relayedFirst := newTestEngine()
			relayedFirst.OnInboundPush(relayed)
			relayedFirst.OnInboundPush(tt.durable)
			assertIDs(t, relayedFirst, tt.durable.ID)
		})
	}
}

func TestFallbackMatchesOldestIdenticalProvisional(t *testing.T) {
	e := newTestEngine()
	e.AddProvisional("hi", "", t0)
	e.AddProvisional("hi", "", t0.Add(time.Millisecond))

	e.OnConfirmed(durable("m1", "", "user_1", "user_2", "hi", t0.Add(time.Second)))
	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log has %d entries", len(msgs))
	}
	// tmp-1 was the oldest and is now m1; it sorts after tmp-2 by server time.
	assertIDs(t, e, "tmp-2", "m1")
	if msgs[1].ClientID != "tmp-1" {
		t.Errorf("m1 replaced %q, want tmp-1", msgs[1].ClientID)
	}

	e.OnConfirmed(durable("m2", "", "user_1", "user_2", "hi", t0.Add(2*time.Second)))
	assertIDs(t, e, "m1", "m2")
}

// TestCorrelatedConfirmationSkipsFallback verifies a durable copy carrying a
// foreign clientId does not swallow an unrelated pending send with equal content.
func TestCorrelatedConfirmationSkipsFallback(t *testing.T) {
	e := newTestEngine()
	e.AddProvisional("hi", "", t0)

	e.OnConfirmed(durable("m0", "tmp-old", "user_1", "user_2", "hi", t0.Add(-time.Hour)))
	assertIDs(t, e, "m0", "tmp-1")
}

func TestFallbackIgnoresDifferentContent(t *testing.T) {
	e := newTestEngine()
	e.AddProvisional("hi", "", t0)
	e.OnConfirmed(durable("m1", "", "user_1", "user_2", "hello", t0.Add(time.Second)))
	assertIDs(t, e, "tmp-1", "m1")
}

func TestRollbackRemovesOnlyProvisional(t *testing.T) {
	e := newTestEngine()
	e.OnInboundPush(durable("m1", "", "user_2", "user_1", "yo", t0))
	p := e.AddProvisional("hi", "", t0.Add(time.Second))

	if !e.Rollback(p.ClientID) {
		t.Fatal("Rollback() = false for pending send")
	}
	assertIDs(t, e, "m1")
	if e.Rollback(p.ClientID) {
		t.Error("second Rollback() = true")
	}
}

func TestRollbackAfterConfirmationIsNoop(t *testing.T) {
	e := newTestEngine()
	p := e.AddProvisional("hi", "", t0)
	e.OnInboundPush(durable("m1", p.ClientID, "user_1", "user_2", "hi", t0))
	if e.Rollback(p.ClientID) {
		t.Error("Rollback() removed a confirmed message")
	}
	assertIDs(t, e, "m1")
}

func TestInboundFiltersForeignConversation(t *testing.T) {
	e := newTestEngine()
	if e.OnInboundPush(durable("m1", "", "user_3", "user_1", "psst", t0)) {
		t.Error("accepted message from another conversation")
	}
	if e.OnConfirmed(durable("m2", "", "user_1", "user_3", "psst", t0)) {
		t.Error("confirmed message from another conversation")
	}
	if e.Len() != 0 {
		t.Errorf("Len() = %d, want 0", e.Len())
	}
}

func TestInboundIdempotentOnID(t *testing.T) {
	e := newTestEngine()
	m := durable("m1", "", "user_2", "user_1", "yo", t0)
	if !e.OnInboundPush(m) {
		t.Fatal("first push not applied")
	}
	if e.OnInboundPush(m) {
		t.Error("duplicate push reported a change")
	}
	assertIDs(t, e, "m1")
	if st := e.Messages()[0].DeliveryState; st != protocol.StateNone {
		t.Errorf("peer message state = %q, want empty", st)
	}
}

func TestRelayedCopyUpgradedInPlace(t *testing.T) {
	e := newTestEngine()
	relayed := protocol.Message{ClientID: "tmp-9", SenderID: "user_2", ReceiverID: "user_1", Content: "yo", CreatedAt: t0}

	e.OnInboundPush(relayed)
	e.OnInboundPush(relayed)
	if e.Len() != 1 {
		t.Fatalf("relayed copy duplicated: %d entries", e.Len())
	}
	e.OnInboundPush(durable("m7", "tmp-9", "user_2", "user_1", "yo", t0.Add(5*time.Millisecond)))
	assertIDs(t, e, "m7")
}

func TestOrderingConvergesAcrossArrivalOrders(t *testing.T) {
	msgs := []protocol.Message{
		durable("a", "", "user_1", "user_2", "1", t0.Add(1*time.Second)),
		durable("b", "", "user_2", "user_1", "2", t0.Add(2*time.Second)),
		durable("c", "", "user_1", "user_2", "3", t0.Add(3*time.Second)),
		durable("d", "", "user_2", "user_1", "4", t0.Add(4*time.Second)),
	}
	perms := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}, {1, 3, 0, 2}}
	for _, perm := range perms {
		e := newTestEngine()
		for _, i := range perm {
			e.OnInboundPush(msgs[i])
		}
		assertIDs(t, e, "a", "b", "c", "d")
	}
}

func TestEqualTimestampsKeepArrivalOrder(t *testing.T) {
	e := newTestEngine()
	e.OnInboundPush(durable("x", "", "user_2", "user_1", "1", t0))
	e.OnInboundPush(durable("y", "", "user_2", "user_1", "2", t0))
	e.OnInboundPush(durable("z", "", "user_1", "user_2", "3", t0))
	assertIDs(t, e, "x", "y", "z")
}

func TestLoadHistoryKeepsUncoveredEntries(t *testing.T) {
	e := newTestEngine()
	e.AddProvisional("pending", "", t0.Add(10*time.Second))
	// A push that raced the fetch.
	e.OnInboundPush(durable("m9", "", "user_2", "user_1", "late", t0.Add(9*time.Second)))

	e.LoadHistory([]protocol.Message{
		durable("m1", "", "user_1", "user_2", "old", t0.Add(1*time.Second)),
		durable("m2", "", "user_2", "user_1", "older reply", t0.Add(2*time.Second)),
		durable("mx", "", "user_3", "user_1", "foreign", t0.Add(3*time.Second)),
	})
	assertIDs(t, e, "m1", "m2", "m9", "tmp-1")
}

func TestLoadHistoryConfirmsPendingByClientID(t *testing.T) {
	e := newTestEngine()
	p := e.AddProvisional("hi", "", t0)
	e.LoadHistory([]protocol.Message{durable("m100", p.ClientID, "user_1", "user_2", "hi", t0.Add(time.Second))})
	assertIDs(t, e, "m100")

	// Reloading the same snapshot changes nothing.
	e.LoadHistory([]protocol.Message{durable("m100", p.ClientID, "user_1", "user_2", "hi", t0.Add(time.Second))})
	assertIDs(t, e, "m100")
}

func TestReceiptsAreMonotonic(t *testing.T) {
	e := newTestEngine()
	p := e.AddProvisional("hi", "", t0)
	e.OnConfirmed(durable("m100", p.ClientID, "user_1", "user_2", "hi", t0))

	if !e.MarkSeen("m100") {
		t.Fatal("MarkSeen() = false")
	}
	if e.MarkSeen("m100") {
		t.Error("second MarkSeen() reported a change")
	}
	if e.MarkDelivered("m100", "") {
		t.Error("MarkDelivered() after seen reported a change")
	}
	if st := e.Messages()[0].DeliveryState; st != protocol.StateSeen {
		t.Errorf("state = %q, want seen", st)
	}

	// A later authoritative copy does not downgrade the receipt.
	e.OnInboundPush(durable("m100", p.ClientID, "user_1", "user_2", "hi", t0))
	if st := e.Messages()[0].DeliveryState; st != protocol.StateSeen {
		t.Errorf("state after re-push = %q, want seen", st)
	}
}

func TestDeliveredBeforeConfirmationIsStaged(t *testing.T) {
	e := newTestEngine()
	p := e.AddProvisional("hi", "", t0)

	e.MarkDelivered("", p.ClientID)
	if st := e.Messages()[0].DeliveryState; st != protocol.StateNone {
		t.Fatalf("provisional state = %q, want empty", st)
	}
	e.OnConfirmed(durable("m100", p.ClientID, "user_1", "user_2", "hi", t0))
	if st := e.Messages()[0].DeliveryState; st != protocol.StateDelivered {
		t.Errorf("state = %q, want delivered", st)
	}
}

func TestReceiptIgnoresPeerMessages(t *testing.T) {
	e := newTestEngine()
	e.OnInboundPush(durable("m1", "", "user_2", "user_1", "yo", t0))
	if e.MarkSeen("m1") {
		t.Error("MarkSeen() changed a message the local user received")
	}
	if e.MarkSeen("missing") {
		t.Error("MarkSeen() on unknown id reported a change")
	}
}

func TestProvisionalIDsAreUnique(t *testing.T) {
	e := NewEngine("user_1", "user_2")
	seen := make(map[string]bool)
	for n := 0; n < 500; n++ {
		p := e.AddProvisional("x", "", t0)
		if seen[p.ClientID] {
			t.Fatalf("duplicate provisional id %s", p.ClientID)
		}
		seen[p.ClientID] = true
	}
}
