// Package session runs arbitration sessions: an Actor that serializes access
// to one pipeline, and an Enricher that gathers a property's fields from
// many sources and feeds them through an Actor.
package session

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/arbiter/internal/arbiter"
	"github.com/sells-group/arbiter/internal/model"
)

// ErrClosed is returned by calls on a closed Actor.
var ErrClosed = eris.New("session: actor closed")

type call struct {
	fn    func(*arbiter.Pipeline)
	reply chan struct{}
}

// Actor owns a pipeline and applies every operation on it from a single
// goroutine, so concurrent producers can feed one session safely.
type Actor struct {
	calls     chan call
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewActor starts an actor over p. Call Close to stop it.
func NewActor(p *arbiter.Pipeline) *Actor {
	a := &Actor{
		calls: make(chan call),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go a.loop(p)
	return a
}

func (a *Actor) loop(p *arbiter.Pipeline) {
	defer close(a.done)
	for {
		select {
		case c := <-a.calls:
			c.fn(p)
			close(c.reply)
		case <-a.quit:
			return
		}
	}
}

// do runs fn on the actor goroutine and waits for it to finish. Once the
// call is accepted it runs to completion even if ctx ends first.
func (a *Actor) do(ctx context.Context, fn func(*arbiter.Pipeline)) error {
	c := call{fn: fn, reply: make(chan struct{})}
	select {
	case a.calls <- c:
	case <-a.quit:
		return ErrClosed
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "session: submit")
	}
	select {
	case <-c.reply:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "session: await")
	}
}

// Submit feeds every usable value one source reported and returns how many
// were forwarded to arbitration.
func (a *Actor) Submit(ctx context.Context, fields map[string]any, source string) (int, error) {
	var n int
	if err := a.do(ctx, func(p *arbiter.Pipeline) { n = p.AddFieldsFromSource(fields, source) }); err != nil {
		return 0, err
	}
	return n, nil
}

// AddField arbitrates a single candidate value.
func (a *Actor) AddField(ctx context.Context, fieldKey string, v model.Value, source string) error {
	return a.do(ctx, func(p *arbiter.Pipeline) { p.AddField(fieldKey, v, source) })
}

// FieldCount returns the number of accepted fields so far.
func (a *Actor) FieldCount(ctx context.Context) (int, error) {
	var n int
	if err := a.do(ctx, func(p *arbiter.Pipeline) { n = p.FieldCount() }); err != nil {
		return 0, err
	}
	return n, nil
}

// Result returns a finalized snapshot of the session.
func (a *Actor) Result(ctx context.Context) (*model.Result, error) {
	var res *model.Result
	if err := a.do(ctx, func(p *arbiter.Pipeline) { res = p.Result() }); err != nil {
		return nil, err
	}
	return res, nil
}

// Close stops the actor and waits for its goroutine to exit. It is safe to
// call more than once.
func (a *Actor) Close() {
	a.closeOnce.Do(func() { close(a.quit) })
	<-a.done
}
