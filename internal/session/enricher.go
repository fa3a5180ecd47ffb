package session

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/arbiter/internal/arbiter"
	"github.com/sells-group/arbiter/internal/fetcher"
	"github.com/sells-group/arbiter/internal/model"
	"github.com/sells-group/arbiter/internal/resilience"
	"github.com/sells-group/arbiter/internal/tier"
	"github.com/sells-group/arbiter/internal/validate"
)

// Options tunes an Enricher. Zero values take the defaults noted.
type Options struct {
	// Concurrency bounds parallel fetches. Default: 4.
	Concurrency int
	// Timeout bounds one fetch attempt. Default: 30s.
	Timeout time.Duration
	// Backoff is the retry policy per source. Default: resilience.DefaultBackoff.
	Backoff resilience.Backoff
	// Breakers skips sources that keep failing. Nil disables it.
	Breakers *resilience.Breakers
	// MinQuorum is the default quorum for sessions that do not set one.
	MinQuorum int
	Metrics   *arbiter.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// Enricher gathers a property's fields from many sources and arbitrates
// them in one session. It is safe for concurrent use; each Enrich call runs
// its own session.
type Enricher struct {
	registry  *tier.Registry
	validator *validate.Validator
	opts      Options
}

// EnrichResult is the outcome of one enrichment session.
type EnrichResult struct {
	Property   model.Property `json:"property"`
	Result     *model.Result  `json:"result"`
	FieldCount int            `json:"field_count"`
	// Fed counts values forwarded to arbitration, per source.
	Fed map[string]int `json:"fed"`
	// SourceErrors holds the final error of each source that failed.
	SourceErrors map[string]string `json:"source_errors,omitempty"`
}

// NewEnricher creates an enricher classifying sources with reg and
// validating values with v. Nil falls back to the built-in tables.
func NewEnricher(reg *tier.Registry, v *validate.Validator, opts Options) *Enricher {
	if reg == nil {
		reg = tier.Default()
	}
	if v == nil {
		v = validate.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Backoff.Attempts <= 0 {
		opts.Backoff = opts.Backoff.WithAttempts(resilience.DefaultBackoff().Attempts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	return &Enricher{registry: reg, validator: v, opts: opts}
}

// Registry returns the tier registry sessions classify sources with.
func (e *Enricher) Registry() *tier.Registry { return e.registry }

// NewPipeline opens an empty session configured like the enricher's.
// minQuorum <= 0 uses the enricher default.
func (e *Enricher) NewPipeline(minQuorum int) *arbiter.Pipeline {
	if minQuorum <= 0 {
		minQuorum = e.opts.MinQuorum
	}
	opts := []arbiter.Option{
		arbiter.WithMinQuorum(minQuorum),
		arbiter.WithLogger(e.opts.Logger),
		arbiter.WithMetrics(e.opts.Metrics),
	}
	if e.opts.Now != nil {
		opts = append(opts, arbiter.WithNow(e.opts.Now))
	}
	return arbiter.NewPipeline(e.registry, e.validator, opts...)
}

type fetched struct {
	fields map[string]any
	err    error
	ready  chan struct{}
}

// Enrich fetches p from every source concurrently and arbitrates the
// results. Values are fed in the order sources are given, regardless of
// which fetch finishes first, so the outcome is deterministic. A failed
// source is recorded in SourceErrors and never fails the session; only
// cancellation of ctx does.
func (e *Enricher) Enrich(ctx context.Context, p model.Property, sources []fetcher.Source, minQuorum int) (*EnrichResult, error) {
	log := e.opts.Logger.With(zap.String("property_id", p.ID))

	actor := NewActor(e.NewPipeline(minQuorum))
	defer actor.Close()

	slots := make([]*fetched, len(sources))
	for i := range slots {
		slots[i] = &fetched{ready: make(chan struct{})}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency + 1)

	// Feeder: submits results in source order as they become ready.
	out := &EnrichResult{Property: p, Fed: map[string]int{}, SourceErrors: map[string]string{}}
	g.Go(func() error {
		for i, s := range sources {
			select {
			case <-slots[i].ready:
			case <-gctx.Done():
				return gctx.Err()
			}
			if err := slots[i].err; err != nil {
				out.SourceErrors[s.Name()] = err.Error()
				continue
			}
			n, err := actor.Submit(gctx, slots[i].fields, s.Name())
			if err != nil {
				return err
			}
			out.Fed[s.Name()] += n
		}
		return nil
	})

	for i, s := range sources {
		g.Go(func() error {
			defer close(slots[i].ready)
			slots[i].fields, slots[i].err = e.fetch(gctx, log, p, s)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "session: enrich")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "session: enrich")
	}

	res, err := actor.Result(ctx)
	if err != nil {
		return nil, err
	}
	out.Result = res
	out.FieldCount = len(res.Fields)

	log.Info("session: enrichment complete",
		zap.Int("sources", len(sources)),
		zap.Int("failed_sources", len(out.SourceErrors)),
		zap.Int("fields", out.FieldCount),
		zap.Int("conflicts", len(res.Conflicts)),
	)
	return out, nil
}

// fetch runs one source through its breaker with retries and a per-attempt
// timeout.
func (e *Enricher) fetch(ctx context.Context, log *zap.Logger, p model.Property, s fetcher.Source) (map[string]any, error) {
	name := s.Name()
	if b := e.opts.Breakers; b != nil {
		if err := b.Allow(name); err != nil {
			log.Warn("session: skipping source", zap.String("source", name), zap.Error(err))
			return nil, err
		}
	}

	policy := e.opts.Backoff
	policy.OnRetry = resilience.LogRetries(log, name)
	fields, err := resilience.RetryVal(ctx, policy, func(ctx context.Context) (map[string]any, error) {
		ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
		return s.Fetch(ctx, p)
	})

	if b := e.opts.Breakers; b != nil && ctx.Err() == nil {
		b.Record(name, err)
	}
	if err != nil {
		log.Warn("session: source failed",
			zap.String("source", name),
			zap.Int("tier", int(e.registry.TierOf(name))),
			zap.Error(err),
		)
		return nil, err
	}
	return fields, nil
}
