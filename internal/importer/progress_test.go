package importer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduce(t *testing.T) {
	running := Progress{RunID: "r", Phase: PhaseRunning, Percent: 40, Message: "Uploading 2/5...", Done: 2, Total: 5, Seq: 9}

	tests := []struct {
		name  string
		from  Progress
		event Event
		want  Progress
	}{
		{
			name:  "started resets counters",
			from:  Progress{Phase: PhaseFailed, Percent: 60, Message: "boom", Seq: 3},
			event: Started{RunID: "r2", Strategy: "add-excel-file", Total: 4},
			want:  Progress{RunID: "r2", Strategy: "add-excel-file", Phase: PhaseRunning, Message: MessageStarting, Total: 4, Seq: 3},
		},
		{
			name:  "step rounds percent",
			from:  running,
			event: Stepped{Done: 3, Total: 7, Message: "Uploading 3/7..."},
			want:  Progress{RunID: "r", Phase: PhaseRunning, Percent: 43, Message: "Uploading 3/7...", Done: 3, Total: 7, Seq: 9},
		},
		{
			name:  "step never lowers percent",
			from:  running,
			event: Stepped{Done: 1, Total: 5, Message: "x"},
			want:  Progress{RunID: "r", Phase: PhaseRunning, Percent: 40, Message: "x", Done: 1, Total: 5, Seq: 9},
		},
		{
			name:  "last step holds at 99",
			from:  running,
			event: Stepped{Done: 5, Total: 5, Message: "Uploading 5/5..."},
			want:  Progress{RunID: "r", Phase: PhaseRunning, Percent: 99, Message: "Uploading 5/5...", Done: 5, Total: 5, Seq: 9},
		},
		{
			name:  "succeeded reaches 100",
			from:  running,
			event: Succeeded{},
			want:  Progress{RunID: "r", Phase: PhaseSucceeded, Percent: 100, Message: MessageSucceeded, Done: 2, Total: 5, Seq: 9},
		},
		{
			name:  "failed keeps percent and shows error",
			from:  running,
			event: Failed{Err: errors.New("failed to upload document 3/5: connection refused")},
			want:  Progress{RunID: "r", Phase: PhaseFailed, Percent: 40, Message: "failed to upload document 3/5: connection refused", Done: 2, Total: 5, Seq: 9},
		},
		{
			name:  "reset returns to idle",
			from:  running,
			event: Reset{},
			want:  Progress{Phase: PhaseIdle, Seq: 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduce(tt.from, tt.event))
		})
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	from := Progress{Phase: PhaseRunning, Percent: 10}
	_ = Reduce(from, Succeeded{})
	assert.Equal(t, 10, from.Percent)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, percent(0, 0))
	assert.Equal(t, 0, percent(0, 3))
	assert.Equal(t, 33, percent(1, 3))
	assert.Equal(t, 67, percent(2, 3))
	assert.Equal(t, 99, percent(3, 3))
	assert.Equal(t, 1, percent(1, 200))
}

func TestProgress_Finished(t *testing.T) {
	assert.False(t, Idle().Finished())
	assert.False(t, Progress{Phase: PhaseRunning}.Finished())
	assert.True(t, Progress{Phase: PhaseSucceeded}.Finished())
	assert.True(t, Progress{Phase: PhaseFailed}.Finished())
}

// ============================================================================
// Channel
// ============================================================================

func TestChannel_SubscribeGetsCurrent(t *testing.T) {
	ch := NewChannel()
	ch.Publish(Started{RunID: "r", Total: 2})

	sub, unsubscribe := ch.Subscribe()
	defer unsubscribe()

	got := <-sub
	assert.Equal(t, PhaseRunning, got.Phase)
	assert.Equal(t, uint64(1), got.Seq)
}

func TestChannel_SlowSubscriberSeesLatestOnly(t *testing.T) {
	ch := NewChannel()
	sub, unsubscribe := ch.Subscribe()
	defer unsubscribe()
	<-sub // initial idle value

	ch.Publish(Started{RunID: "r", Total: 3})
	ch.Publish(Stepped{Done: 1, Total: 3, Message: "Uploading 1/3..."})
	ch.Publish(Stepped{Done: 2, Total: 3, Message: "Uploading 2/3..."})

	got := <-sub
	assert.Equal(t, "Uploading 2/3...", got.Message)
	assert.Equal(t, uint64(3), got.Seq)

	select {
	case p := <-sub:
		t.Fatalf("expected no buffered history, got %+v", p)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestChannel_Unsubscribe(t *testing.T) {
	ch := NewChannel()
	sub, unsubscribe := ch.Subscribe()
	require.Equal(t, 1, ch.Subscribers())

	unsubscribe()
	unsubscribe() // idempotent
	assert.Equal(t, 0, ch.Subscribers())

	<-sub // buffered initial value
	_, open := <-sub
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	ch.Publish(Reset{})
}

func TestChannel_ObserveSeesEveryValue(t *testing.T) {
	ch := NewChannel()
	var seen []string
	ch.Observe(func(p Progress) { seen = append(seen, p.Message) })

	ch.Publish(Started{RunID: "r", Total: 2})
	ch.Publish(Stepped{Done: 1, Total: 2, Message: "Uploading 1/2..."})
	ch.Publish(Stepped{Done: 2, Total: 2, Message: "Uploading 2/2..."})
	ch.Publish(Succeeded{})

	assert.Equal(t, []string{MessageStarting, "Uploading 1/2...", "Uploading 2/2...", MessageSucceeded}, seen)
}
