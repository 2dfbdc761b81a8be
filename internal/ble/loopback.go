package ble

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/vitaminmoo/blexfer/internal/config"
	"github.com/vitaminmoo/blexfer/internal/protocol"
)

// ErrSimulatedFailure is reported for writes selected by LoopbackConfig.FailEvery.
var ErrSimulatedFailure = errors.New("simulated write failure")

// LoopbackConfig controls how a Loopback misbehaves.
type LoopbackConfig struct {
	MTU        int           // Default: 23
	WriteDelay time.Duration // time until a write completes

	// DropEvery swallows the completion of every Nth write, so it times out.
	DropEvery int
	// FailEvery completes every Nth write with ErrSimulatedFailure.
	FailEvery int
	// LossRate drops write completions at random.
	LossRate float64
	Seed     int64

	// Echo notifies every delivered packet back to the subscriber.
	Echo bool
	// Reply, if set, is notified instead of the packet.
	Reply []byte
}

// Loopback is an in-memory peripheral for simulated transfers.
type Loopback struct {
	cfg LoopbackConfig

	mu       sync.Mutex
	rng      *rand.Rand
	writes   int
	received [][]byte
	handler  func([]byte)
}

// NewLoopback creates a loopback link.
func NewLoopback(cfg LoopbackConfig) *Loopback {
	if cfg.MTU <= 0 {
		cfg.MTU = protocol.DefaultMTU
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Loopback{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (l *Loopback) Write(packet []byte, done func(err error)) error {
	buf := append([]byte(nil), packet...)

	l.mu.Lock()
	l.writes++
	n := l.writes
	drop := l.cfg.DropEvery > 0 && n%l.cfg.DropEvery == 0
	if l.cfg.LossRate > 0 && l.rng.Float64() < l.cfg.LossRate {
		drop = true
	}
	fail := !drop && l.cfg.FailEvery > 0 && n%l.cfg.FailEvery == 0
	l.mu.Unlock()

	go func() {
		if l.cfg.WriteDelay > 0 {
			time.Sleep(l.cfg.WriteDelay)
		}
		if drop {
			config.Debugf("Loopback: dropping write %d", n)
			return
		}
		if fail {
			config.Debugf("Loopback: failing write %d", n)
			done(ErrSimulatedFailure)
			return
		}

		l.mu.Lock()
		l.received = append(l.received, buf)
		handler := l.handler
		l.mu.Unlock()

		done(nil)
		if handler == nil {
			return
		}
		switch {
		case l.cfg.Reply != nil:
			handler(append([]byte(nil), l.cfg.Reply...))
		case l.cfg.Echo:
			handler(buf)
		}
	}()
	return nil
}

func (l *Loopback) EnableNotifications(handler func(data []byte)) error {
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
	return nil
}

func (l *Loopback) MTU() int {
	return l.cfg.MTU
}

// Writes returns the number of writes issued.
func (l *Loopback) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

// Received returns every delivered packet concatenated, duplicates from
// retried packets included.
func (l *Loopback) Received() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []byte
	for _, p := range l.received {
		out = append(out, p...)
	}
	return out
}

// Packets returns the delivered packets in order.
func (l *Loopback) Packets() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.received))
	copy(out, l.received)
	return out
}
