package webapi

import (
	"sync"
	"time"
)

// ProgressFrame is one step of a scheduler tick's narration, sent to
// every SSE subscriber as it happens.
type ProgressFrame struct {
	Step   string    `json:"step"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// Broadcaster fans tick progress out to however many SSE clients are
// currently connected. Grounded on internal/sdtprobe/worker.go's
// ForceRescan buffered-channel idiom, generalized from one
// trigger-channel to one channel per subscriber plus a registry.
//
// Each subscriber channel is buffered so a slow reader drops frames
// instead of blocking the scheduler tick that's publishing them — the
// scheduler must never stall waiting on an HTTP client.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan ProgressFrame]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan ProgressFrame]struct{})}
}

// Report implements scheduler.ProgressReporter.
func (b *Broadcaster) Report(step, detail string) {
	frame := ProgressFrame{Step: step, Detail: detail, At: timeNow()}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Subscribe registers a new listener; call the returned func to
// unsubscribe and release the channel.
func (b *Broadcaster) Subscribe() (chan ProgressFrame, func()) {
	ch := make(chan ProgressFrame, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}
}

func timeNow() time.Time { return time.Now() }
