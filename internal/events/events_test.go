package events

import (
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, runID string, n int) Event {
	t.Helper()
	ev, err := New(runID, TypeLog, map[string]int{"n": n})
	require.NoError(t, err)
	return ev
}

func drain(sub *Subscription) []Event {
	var out []Event
	for ev := range sub.C {
		out = append(out, ev)
	}
	return out
}

func payloadN(t *testing.T, ev Event) int {
	t.Helper()
	var p struct{ N int }
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	return p.N
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(16)
	reg.Open("run")
	a := reg.Subscribe("run")
	b := reg.Subscribe("run")

	for i := 0; i < 5; i++ {
		reg.Publish(mustEvent(t, "run", i))
	}
	reg.Finish("run")

	for _, sub := range []*Subscription{a, b} {
		got := drain(sub)
		require.Len(t, got, 5)
		for i, ev := range got {
			assert.Equal(t, i, payloadN(t, ev))
		}
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(4)
	reg.Publish(mustEvent(t, "unknown", 1))
	reg.Open("run")
	reg.Publish(mustEvent(t, "run", 1))
	assert.Zero(t, reg.Subscribers("run"))
}

func TestFullQueueDropsNewest(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(2)
	var dropped atomic.Int64
	reg.OnDrop(func(string) { dropped.Add(1) })
	reg.Open("run")
	sub := reg.Subscribe("run")

	for i := 0; i < 4; i++ {
		reg.Publish(mustEvent(t, "run", i))
	}
	reg.Finish("run")

	got := drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, 0, payloadN(t, got[0]))
	assert.Equal(t, 1, payloadN(t, got[1]))
	assert.Equal(t, int64(2), dropped.Load())
}

func TestTeardownAfterFinishAndLastUnsubscribe(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(4)
	reg.Open("run")
	a := reg.Subscribe("run")
	b := reg.Subscribe("run")

	reg.Finish("run")
	assert.True(t, reg.Active("run"))

	a.Close()
	assert.True(t, reg.Active("run"))
	b.Close()
	b.Close()
	assert.False(t, reg.Active("run"))
}

func TestFinishWithoutSubscribersTearsDown(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(4)
	reg.Open("run")
	reg.Finish("run")
	assert.False(t, reg.Active("run"))
	reg.Publish(mustEvent(t, "run", 1))
}

func TestSubscribeToFinishedRunIsClosed(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(4)
	reg.Open("run")
	keep := reg.Subscribe("run")
	reg.Finish("run")

	late := reg.Subscribe("run")
	_, ok := <-late.C
	assert.False(t, ok)
	late.Close()

	unknown := reg.Subscribe("never-opened")
	_, ok = <-unknown.C
	assert.False(t, ok)

	keep.Close()
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(4)
	reg.Open("run")
	sub := reg.Subscribe("run")
	sub.Close()

	reg.Publish(mustEvent(t, "run", 1))
	assert.Empty(t, drain(sub))
	assert.True(t, reg.Active("run"))
}
