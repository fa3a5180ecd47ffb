package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrSourceOpen is returned for a source whose breaker is open.
var ErrSourceOpen = eris.New("source temporarily disabled after repeated failures")

// BreakerState is the state of one source's breaker.
type BreakerState int

const (
	// BreakerClosed lets fetches through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects fetches until the cooldown elapses.
	BreakerOpen
	// BreakerProbing lets one fetch through to test recovery.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	}
	return "unknown"
}

// Breakers tracks consecutive fetch failures per source. After Threshold
// failures in a row a source is skipped for Cooldown, then a single probe
// decides whether it recovers. Safe for concurrent use.
type Breakers struct {
	Threshold int
	Cooldown  time.Duration

	mu      sync.Mutex
	now     func() time.Time
	sources map[string]*breaker
}

type breaker struct {
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreakers creates breakers with the given threshold and cooldown.
// Non-positive values fall back to 5 failures and 60s.
func NewBreakers(threshold int, cooldown time.Duration) *Breakers {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breakers{
		Threshold: threshold,
		Cooldown:  cooldown,
		now:       time.Now,
		sources:   make(map[string]*breaker),
	}
}

// Allow returns ErrSourceOpen if source should not be fetched right now.
func (b *Breakers) Allow(source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.get(source)
	switch br.state {
	case BreakerOpen:
		if b.now().Sub(br.openedAt) < b.Cooldown {
			return eris.Wrapf(ErrSourceOpen, "source %s", source)
		}
		br.state = BreakerProbing
	case BreakerProbing:
		// Another caller holds the probe.
		return eris.Wrapf(ErrSourceOpen, "source %s", source)
	}
	return nil
}

// Record reports the outcome of a fetch allowed by Allow.
func (b *Breakers) Record(source string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.get(source)
	if err == nil {
		br.state = BreakerClosed
		br.failures = 0
		return
	}

	br.failures++
	if br.state == BreakerProbing || br.failures >= b.Threshold {
		br.state = BreakerOpen
		br.openedAt = b.now()
	}
}

// State returns the current state of source.
func (b *Breakers) State(source string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(source).state
}

// States snapshots every source seen so far.
func (b *Breakers) States() map[string]BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]BreakerState, len(b.sources))
	for name, br := range b.sources {
		out[name] = br.state
	}
	return out
}

func (b *Breakers) get(source string) *breaker {
	br, ok := b.sources[source]
	if !ok {
		br = &breaker{}
		b.sources[source] = br
	}
	return br
}
