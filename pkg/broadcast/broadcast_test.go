package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New[int]()
	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	b.Publish(7)

	assert.Equal(t, 7, <-ch1)
	assert.Equal(t, 7, <-ch2)
}

func TestSlowSubscriberGetsLatest(t *testing.T) {
	b := New[int]()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 1; i <= 100; i++ {
		b.Publish(i)
	}

	select {
	case v := <-ch:
		assert.Equal(t, 100, v)
	case <-time.After(time.Second):
		t.Fatal("no value delivered")
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestSubscribeReceivesLatestImmediately(t *testing.T) {
	b := New[string]()
	b.Publish("snapshot")

	ch, unsub := b.Subscribe()
	defer unsub()
	assert.Equal(t, "snapshot", <-ch)

	v, ok := b.Latest()
	assert.True(t, ok)
	assert.Equal(t, "snapshot", v)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New[int]()
	ch, unsub := b.Subscribe()
	require.Equal(t, 1, b.Subscribers())

	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers())

	b.Publish(1) // must not panic on closed channel
}

func TestPublishNeverBlocksOnAbandonedSubscriber(t *testing.T) {
	b := New[int]()
	_, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a subscriber that never reads")
	}
}

func TestOrderingIsPreserved(t *testing.T) {
	b := New[int]()
	ch, unsub := b.Subscribe()
	defer unsub()

	var wg sync.WaitGroup
	wg.Add(1)
	var seen []int
	go func() {
		defer wg.Done()
		for v := range ch {
			seen = append(seen, v)
			if v == 500 {
				return
			}
		}
	}()

	for i := 1; i <= 500; i++ {
		b.Publish(i)
	}
	wg.Wait()

	require.NotEmpty(t, seen)
	assert.Equal(t, 500, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i], "snapshots must arrive in publish order")
	}
}

func TestCloseUnsubscribesEverybody(t *testing.T) {
	b := New[int]()
	ch, _ := b.Subscribe()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
