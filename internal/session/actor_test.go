package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/arbiter/internal/arbiter"
	"github.com/sells-group/arbiter/internal/model"
)

func newTestActor() *Actor {
	return NewActor(arbiter.NewPipeline(nil, nil, arbiter.WithLogger(zap.NewNop())))
}

func TestActor_ConcurrentSubmits(t *testing.T) {
	t.Parallel()
	a := newTestActor()
	defer a.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := a.Submit(ctx, map[string]any{fmt.Sprintf("field_%02d", i): i + 1}, "Stellar MLS")
			assert.NoError(t, err)
			assert.Equal(t, 1, n)
		}()
	}
	wg.Wait()

	count, err := a.FieldCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, count)

	res, err := a.Result(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Fields, 20)
	assert.Len(t, res.AuditTrail, 20)
}

func TestActor_AddField(t *testing.T) {
	t.Parallel()
	a := newTestActor()
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.AddField(ctx, "pool", model.Bool(true), "GPT"))
	require.NoError(t, a.AddField(ctx, "pool", model.Bool(true), "Gemini"))

	res, err := a.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GPT", "Gemini"}, res.Fields["pool"].LLMSources)
	assert.Empty(t, res.SingleSourceWarnings)
}

func TestActor_Closed(t *testing.T) {
	t.Parallel()
	a := newTestActor()
	a.Close()
	a.Close()

	_, err := a.Result(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, a.AddField(context.Background(), "x", model.String("y"), "GPT"), ErrClosed)
}

func TestActor_CancelledContext(t *testing.T) {
	t.Parallel()
	a := newTestActor()
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the call is refused or it completes; it never hangs.
	_, err := a.FieldCount(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
