package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/archive/internal/gateway"
	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/store/memory"
)

// ============================================================================
// Fake gateway
// ============================================================================

// fakeGateway records every call in order. failCreateAt and failDeleteAt are
// 1-based call numbers that fail; 0 disables the failure.
type fakeGateway struct {
	mu       sync.Mutex
	existing []schema.Record
	calls    []string

	failCreateAt int
	failDeleteAt int
	failList     bool
	createBlock  chan struct{} // when set, each create waits on it

	creates int
	deletes int
}

func (f *fakeGateway) Snapshot(context.Context) gateway.Result[[]schema.Record] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list")
	if f.failList {
		return failedResult[[]schema.Record]("no such host")
	}
	return gateway.OK(append([]schema.Record(nil), f.existing...))
}

func (f *fakeGateway) Create(ctx context.Context, fields schema.Fields) gateway.Result[schema.Record] {
	if f.createBlock != nil {
		select {
		case <-f.createBlock:
		case <-ctx.Done():
			return failedResult[schema.Record](ctx.Err().Error())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.calls = append(f.calls, "create:"+fields.SerialNumber)
	if f.creates == f.failCreateAt {
		return failedResult[schema.Record]("connection refused")
	}
	return gateway.OK(schema.Record{Meta: schema.Meta{ID: "n" + fields.SerialNumber}, Fields: fields})
}

func (f *fakeGateway) Delete(_ context.Context, id string) gateway.Result[struct{}] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	f.calls = append(f.calls, "delete:"+id)
	if f.deletes == f.failDeleteAt {
		return failedResult[struct{}]("connection reset")
	}
	return gateway.OK(struct{}{})
}

func (f *fakeGateway) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func failedResult[T any](msg string) gateway.Result[T] {
	return gateway.Fail[T](errors.New(msg))
}

func candidateRows(n int) []schema.CandidateRow {
	out := make([]schema.CandidateRow, n)
	for i := range out {
		out[i] = schema.CandidateRow{SerialNumber: fmt.Sprint(i + 1)}
	}
	return out
}

func existingRecords(n int) []schema.Record {
	out := make([]schema.Record, n)
	for i := range out {
		out[i] = schema.Record{Meta: schema.Meta{ID: fmt.Sprintf("e%d", i+1)}}
	}
	return out
}

// record collects every published progress value.
func record(t *testing.T, ch *Channel) func() []Progress {
	t.Helper()
	sub := &recorder{}
	ch.Observe(sub.add)
	return sub.values
}

type recorder struct {
	mu   sync.Mutex
	seen []Progress
}

func (r *recorder) add(p Progress) {
	r.mu.Lock()
	r.seen = append(r.seen, p)
	r.mu.Unlock()
}

func (r *recorder) values() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.seen...)
}

func assertMonotonic(t *testing.T, seen []Progress) {
	t.Helper()
	last := 0
	for _, p := range seen {
		if p.Phase == PhaseIdle {
			last = 0
			continue
		}
		assert.GreaterOrEqual(t, p.Percent, last, "percent went backwards at %q", p.Message)
		last = p.Percent
	}
}

// ============================================================================
// Append
// ============================================================================

func TestRun_AppendAllSucceed(t *testing.T) {
	for _, n := range []int{0, 1, 3, 7} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			gw := &fakeGateway{}
			ch := NewChannel()
			seen := record(t, ch)
			o := New(gw, ch, Options{})

			require.NoError(t, o.Run(context.Background(), candidateRows(n), StrategyAppend))

			var want []string
			for i := 1; i <= n; i++ {
				want = append(want, fmt.Sprintf("create:%d", i))
			}
			assert.Equal(t, want, gw.Calls())

			final := ch.Current()
			assert.Equal(t, PhaseSucceeded, final.Phase)
			assert.Equal(t, 100, final.Percent)
			assert.Equal(t, MessageSucceeded, final.Message)
			assertMonotonic(t, seen())

			for _, p := range seen() {
				if p.Phase != PhaseSucceeded {
					assert.Less(t, p.Percent, 100)
				}
			}
		})
	}
}

func TestRun_AppendProgressMessages(t *testing.T) {
	ch := NewChannel()
	seen := record(t, ch)
	o := New(&fakeGateway{}, ch, Options{})

	require.NoError(t, o.Run(context.Background(), candidateRows(4), StrategyAppend))

	var messages []string
	var percents []int
	for _, p := range seen() {
		messages = append(messages, p.Message)
		percents = append(percents, p.Percent)
	}
	assert.Equal(t, []string{
		MessageStarting,
		"Uploading 1/4...",
		"Uploading 2/4...",
		"Uploading 3/4...",
		"Uploading 4/4...",
		MessageSucceeded,
	}, messages)
	assert.Equal(t, []int{0, 25, 50, 75, 99, 100}, percents)
}

func TestRun_AppendStopsAtFirstFailure(t *testing.T) {
	const n = 6
	for k := 1; k <= n; k++ {
		t.Run(fmt.Sprintf("fail at %d", k), func(t *testing.T) {
			gw := &fakeGateway{failCreateAt: k}
			ch := NewChannel()
			o := New(gw, ch, Options{})

			err := o.Run(context.Background(), candidateRows(n), StrategyAppend)
			require.Error(t, err)

			assert.Len(t, gw.Calls(), k, "calls after the failure must not be issued")
			final := ch.Current()
			assert.Equal(t, PhaseFailed, final.Phase)
			assert.Contains(t, final.Message, "connection refused")
			assert.Less(t, final.Percent, 100)
		})
	}
}

// ============================================================================
// Clear and replace
// ============================================================================

func TestRun_ClearAndReplace(t *testing.T) {
	gw := &fakeGateway{existing: existingRecords(3)}
	ch := NewChannel()
	seen := record(t, ch)
	o := New(gw, ch, Options{})

	require.NoError(t, o.Run(context.Background(), candidateRows(2), StrategyClearAndReplace))

	assert.Equal(t, []string{
		"list",
		"delete:e1", "delete:e2", "delete:e3",
		"create:1", "create:2",
	}, gw.Calls())

	for _, p := range seen() {
		if p.Phase == PhaseRunning && p.Done > 0 {
			assert.Equal(t, 5, p.Total, "denominator spans deletes and creates")
		}
	}
	var messages []string
	for _, p := range seen() {
		messages = append(messages, p.Message)
	}
	assert.Contains(t, messages, "Deleting 3/3...")
	assert.Contains(t, messages, "Uploading 1/2...")

	final := ch.Current()
	assert.Equal(t, PhaseSucceeded, final.Phase)
	assert.Equal(t, 100, final.Percent)
	assertMonotonic(t, seen())
}

func TestRun_ClearAndReplaceListFails(t *testing.T) {
	gw := &fakeGateway{existing: existingRecords(2), failList: true}
	ch := NewChannel()
	o := New(gw, ch, Options{})

	err := o.Run(context.Background(), candidateRows(2), StrategyClearAndReplace)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch documents")
	assert.Equal(t, []string{"list"}, gw.Calls())
	assert.Equal(t, PhaseFailed, ch.Current().Phase)
}

func TestRun_ClearAndReplaceDeleteFailsWithoutRollback(t *testing.T) {
	gw := &fakeGateway{existing: existingRecords(3), failDeleteAt: 2}
	ch := NewChannel()
	o := New(gw, ch, Options{})

	err := o.Run(context.Background(), candidateRows(2), StrategyClearAndReplace)
	require.Error(t, err)
	assert.Equal(t, []string{"list", "delete:e1", "delete:e2"}, gw.Calls())
	assert.Contains(t, ch.Current().Message, "deleted 1, created 0")
}

// ============================================================================
// Strategy, reset, concurrency, cancellation
// ============================================================================

func TestRun_UnknownStrategy(t *testing.T) {
	gw := &fakeGateway{}
	ch := NewChannel()
	o := New(gw, ch, Options{})

	err := o.Run(context.Background(), candidateRows(2), Strategy("bogus"))
	assert.ErrorIs(t, err, ErrNoStrategy)
	assert.Empty(t, gw.Calls())
	assert.Equal(t, PhaseFailed, ch.Current().Phase)
	assert.Equal(t, "upload option not provided", ch.Current().Message)
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
		err  bool
	}{
		{"add-excel-file", StrategyAppend, false},
		{"append", StrategyAppend, false},
		{" Replace ", StrategyClearAndReplace, false},
		{"clear-and-add-excel-file", StrategyClearAndReplace, false},
		{"", "", true},
		{"merge", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.err {
			assert.ErrorIs(t, err, ErrNoStrategy, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestReset_AfterFailure(t *testing.T) {
	gw := &fakeGateway{failCreateAt: 1}
	ch := NewChannel()
	o := New(gw, ch, Options{})

	require.Error(t, o.Run(context.Background(), candidateRows(3), StrategyAppend))
	calls := len(gw.Calls())

	p := o.Reset()
	assert.Equal(t, PhaseIdle, p.Phase)
	assert.Equal(t, 0, p.Percent)
	assert.Empty(t, p.Message)
	assert.Len(t, gw.Calls(), calls, "reset makes no store calls")
}

func TestStart_RejectsSecondRun(t *testing.T) {
	gw := &fakeGateway{createBlock: make(chan struct{})}
	ch := NewChannel()
	o := New(gw, ch, Options{})
	ctx := context.Background()

	_, err := o.Start(ctx, candidateRows(2), StrategyAppend)
	require.NoError(t, err)

	_, err = o.Start(ctx, candidateRows(1), StrategyAppend)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, o.Run(ctx, candidateRows(1), StrategyAppend), ErrRunInProgress)
	assert.True(t, o.Running())

	close(gw.createBlock)
	require.NoError(t, o.Wait(ctx))
	assert.False(t, o.Running())
	assert.Equal(t, PhaseSucceeded, ch.Current().Phase)

	// The slot is free again.
	require.NoError(t, o.Run(ctx, candidateRows(1), StrategyAppend))
}

func TestWait_KeepsFinishedRunErrorAfterNextRunBegins(t *testing.T) {
	gw := &fakeGateway{createBlock: make(chan struct{})}
	o := New(gw, NewChannel(), Options{})
	ctx := context.Background()

	require.ErrorIs(t, o.Run(ctx, candidateRows(1), Strategy("bogus")), ErrNoStrategy)
	first := o.latestRun()
	require.NotNil(t, first)

	// A waiter that saw the first run finish reads its error after the
	// next run has already claimed the slot.
	_, err := o.Start(ctx, candidateRows(1), StrategyAppend)
	require.NoError(t, err)
	assert.ErrorIs(t, first.wait(ctx), ErrNoStrategy)

	close(gw.createBlock)
	assert.NoError(t, o.Wait(ctx))
	assert.ErrorIs(t, first.wait(ctx), ErrNoStrategy)
}

func TestCancel_StopsFurtherWrites(t *testing.T) {
	gw := &fakeGateway{}
	ch := NewChannel()
	o := New(gw, ch, Options{StepDelay: time.Hour})
	ctx := context.Background()

	_, err := o.Start(ctx, candidateRows(5), StrategyAppend)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(gw.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, o.Cancel())

	err = o.Wait(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Len(t, gw.Calls(), 1)
	assert.Equal(t, PhaseFailed, ch.Current().Phase)
	assert.Contains(t, ch.Current().Message, "import cancelled")

	assert.ErrorIs(t, o.Cancel(), ErrNoRun)
}

func TestRun_CallerContextCancelled(t *testing.T) {
	gw := &fakeGateway{}
	o := New(gw, NewChannel(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Run(ctx, candidateRows(3), StrategyAppend)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, gw.Calls())
}

func TestRun_Timeout(t *testing.T) {
	gw := &fakeGateway{}
	o := New(gw, NewChannel(), Options{StepDelay: time.Hour, Timeout: 30 * time.Millisecond})

	err := o.Run(context.Background(), candidateRows(3), StrategyAppend)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, gw.Calls(), 1)
}

func TestRun_StepDelayBetweenCallsOnly(t *testing.T) {
	gw := &fakeGateway{}
	o := New(gw, NewChannel(), Options{StepDelay: 20 * time.Millisecond})

	start := time.Now()
	require.NoError(t, o.Run(context.Background(), candidateRows(3), StrategyAppend))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond, "two pauses for three calls")
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestShutdown_WaitsForRun(t *testing.T) {
	gw := &fakeGateway{createBlock: make(chan struct{})}
	o := New(gw, NewChannel(), Options{})

	_, err := o.Start(context.Background(), candidateRows(1), StrategyAppend)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, o.Shutdown(ctx), context.DeadlineExceeded)

	// Shutdown cancelled the run; it finishes promptly.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	assert.ErrorIs(t, o.Wait(waitCtx), ErrCancelled)
	assert.NoError(t, o.Shutdown(context.Background()))
}

// ============================================================================
// Against the real gateway
// ============================================================================

func TestRun_WithGatewayRoundTrip(t *testing.T) {
	st := memory.New()
	gw := gateway.New(st, "db", "docs", gateway.Options{})
	o := New(gw, NewChannel(), Options{StepDelay: time.Millisecond})
	ctx := context.Background()

	require.NoError(t, o.Run(ctx, candidateRows(3), StrategyAppend))
	assert.Equal(t, 3, st.Len("db", "docs"))

	require.NoError(t, o.Run(ctx, candidateRows(2), StrategyClearAndReplace))
	listed := gw.List(ctx, nil)
	require.True(t, listed.Success)
	assert.Equal(t, 2, listed.Total)
}
