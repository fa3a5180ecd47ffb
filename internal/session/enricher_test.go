package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/arbiter/internal/fetcher"
	"github.com/sells-group/arbiter/internal/model"
	"github.com/sells-group/arbiter/internal/resilience"
)

var testProperty = model.Property{ID: "prop-1", Address: "12 Palm Ave"}

type fakeSource struct {
	name   string
	delay  time.Duration
	fields map[string]any
	fail   func(call int32) error
	calls  atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, _ model.Property) (map[string]any, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(n); err != nil {
			return nil, err
		}
	}
	return f.fields, nil
}

func newTestEnricher(opts Options) *Enricher {
	opts.Logger = zap.NewNop()
	if opts.Backoff.Attempts == 0 {
		opts.Backoff = resilience.Backoff{Attempts: 3, Base: time.Millisecond, Max: 2 * time.Millisecond}
	}
	return NewEnricher(nil, nil, opts)
}

func TestEnrich_FeedsInSourceOrder(t *testing.T) {
	t.Parallel()
	e := newTestEnricher(Options{Concurrency: 3})

	// The LLM source finishes last but is listed first, so it sets the field
	// and the MLS value overrides it.
	sources := []fetcher.Source{
		&fakeSource{name: "GPT", delay: 30 * time.Millisecond, fields: map[string]any{"list_price": 440000}},
		&fakeSource{name: "Stellar MLS", fields: map[string]any{"list_price": 450000, "bedrooms": 3}},
		&fakeSource{name: "WalkScore", fields: map[string]any{"list_price": 460000, "walk_score": 72}},
	}

	out, err := e.Enrich(context.Background(), testProperty, sources, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, out.FieldCount)
	assert.Equal(t, map[string]int{"GPT": 1, "Stellar MLS": 2, "WalkScore": 2}, out.Fed)
	assert.Empty(t, out.SourceErrors)

	f := out.Result.Fields["list_price"]
	assert.Equal(t, "Stellar MLS", f.Source)
	require.NotEmpty(t, out.Result.AuditTrail)
	assert.Equal(t, "GPT", out.Result.AuditTrail[0].Source)
	assert.Equal(t, model.ActionSet, out.Result.AuditTrail[0].Action)
}

func TestEnrich_FailedSourceDoesNotFailSession(t *testing.T) {
	t.Parallel()
	e := newTestEnricher(Options{})

	bad := &fakeSource{name: "FEMA", fail: func(int32) error {
		return resilience.Permanent("FEMA", errors.New("bad request"), 400)
	}}
	sources := []fetcher.Source{
		bad,
		&fakeSource{name: "Stellar MLS", fields: map[string]any{"bedrooms": 3}},
	}

	out, err := e.Enrich(context.Background(), testProperty, sources, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), bad.calls.Load())
	assert.Contains(t, out.SourceErrors, "FEMA")
	assert.Equal(t, 1, out.FieldCount)
}

func TestEnrich_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	e := newTestEnricher(Options{})

	flaky := &fakeSource{
		name:   "WalkScore",
		fields: map[string]any{"walk_score": 72},
		fail: func(n int32) error {
			if n < 3 {
				return resilience.Temporary("WalkScore", errors.New("unavailable"), 503)
			}
			return nil
		},
	}

	out, err := e.Enrich(context.Background(), testProperty, []fetcher.Source{flaky}, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), flaky.calls.Load())
	assert.Empty(t, out.SourceErrors)
	assert.Equal(t, 1, out.FieldCount)
}

func TestEnrich_BreakerSkipsFailingSource(t *testing.T) {
	t.Parallel()
	breakers := resilience.NewBreakers(1, time.Hour)
	e := newTestEnricher(Options{Breakers: breakers, Backoff: resilience.Backoff{Attempts: 1}})

	down := &fakeSource{name: "AirNow", fail: func(int32) error {
		return resilience.Temporary("AirNow", errors.New("timeout"), 504)
	}}

	_, err := e.Enrich(context.Background(), testProperty, []fetcher.Source{down}, 0)
	require.NoError(t, err)
	assert.Equal(t, resilience.BreakerOpen, breakers.State("AirNow"))

	out, err := e.Enrich(context.Background(), testProperty, []fetcher.Source{down}, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), down.calls.Load())
	assert.Contains(t, out.SourceErrors["AirNow"], "temporarily disabled")
}

func TestEnrich_QuorumAcrossSources(t *testing.T) {
	t.Parallel()
	e := newTestEnricher(Options{MinQuorum: 2})

	sources := fetcher.FromBatches([]model.SourceBatch{
		{Source: "GPT", Fields: map[string]any{"roof_type": "tile"}},
		{Source: "Gemini", Fields: map[string]any{"roof_type": "shingle"}},
		{Source: "Grok", Fields: map[string]any{"roof_type": "shingle"}},
	})

	out, err := e.Enrich(context.Background(), testProperty, sources, 0)
	require.NoError(t, err)
	require.Len(t, out.Result.LLMQuorumFields, 1)
	assert.True(t, out.Result.Fields["roof_type"].Value.Equal(model.String("shingle")))

	// a per-session quorum overrides the default
	out, err = e.Enrich(context.Background(), testProperty, sources, 3)
	require.NoError(t, err)
	assert.Empty(t, out.Result.LLMQuorumFields)
}

func TestEnrich_CancelledContext(t *testing.T) {
	t.Parallel()
	e := newTestEnricher(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Enrich(ctx, testProperty, []fetcher.Source{
		&fakeSource{name: "GPT", delay: time.Second, fields: map[string]any{"x": 1}},
	}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnrich_NoSources(t *testing.T) {
	t.Parallel()
	out, err := newTestEnricher(Options{}).Enrich(context.Background(), testProperty, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, out.FieldCount)
	assert.Empty(t, out.Result.Fields)
}
