package presence

import (
	"time"

	"github.com/matheus3301/collab/internal/protocol"
)

// PeerExpiry clears a peer typing flag whose stopTyping never arrived.
const PeerExpiry = 5 * time.Second

// PeerTyping tracks whether the bound peer is currently typing.
type PeerTyping struct {
	peer     string
	expiry   time.Duration
	clock    Clock
	post     Poster
	onChange func(bool)

	typing bool
	timer  Timer
	gen    uint64
}

// NewPeerTyping creates a flag for peer. onChange is called on every flip.
func NewPeerTyping(peer string, expiry time.Duration, clock Clock, post Poster, onChange func(bool)) *PeerTyping {
	if expiry <= 0 {
		expiry = PeerExpiry
	}
	if clock == nil {
		clock = RealClock
	}
	return &PeerTyping{peer: peer, expiry: expiry, clock: clock, post: post, onChange: onChange}
}

// Typing reports the current flag.
func (p *PeerTyping) Typing() bool {
	return p.typing
}

// Observe applies a typing or stopTyping signal. Signals from other users are ignored.
func (p *PeerTyping) Observe(kind protocol.Kind, fromID string) {
	if fromID != p.peer {
		return
	}
	switch kind {
	case protocol.KindTyping:
		p.arm()
		p.set(true)
	case protocol.KindStopTyping:
		p.Clear()
	}
}

// Clear drops the flag, e.g. when a message from the peer arrives.
func (p *PeerTyping) Clear() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
	p.set(false)
}

func (p *PeerTyping) arm() {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	p.timer = p.clock.AfterFunc(p.expiry, func() {
		p.post(func() {
			if gen == p.gen {
				p.timer = nil
				p.set(false)
			}
		})
	})
}

func (p *PeerTyping) set(v bool) {
	if p.typing == v {
		return
	}
	p.typing = v
	if p.onChange != nil {
		p.onChange(v)
	}
}
