package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRingBuffer(t *testing.T) {
	t.Run("with valid size", func(t *testing.T) {
		rb := NewRingBuffer[int](100)
		if rb.Cap() != 100 {
			t.Errorf("Cap() = %d, want 100", rb.Cap())
		}
		if rb.Len() != 0 {
			t.Errorf("Len() = %d, want 0", rb.Len())
		}
	})

	t.Run("with zero size uses default", func(t *testing.T) {
		rb := NewRingBuffer[int](0)
		if rb.Cap() != DefaultSize {
			t.Errorf("Cap() = %d, want %d", rb.Cap(), DefaultSize)
		}
	})

	t.Run("with negative size uses default", func(t *testing.T) {
		rb := NewRingBuffer[int](-5)
		if rb.Cap() != DefaultSize {
			t.Errorf("Cap() = %d, want %d", rb.Cap(), DefaultSize)
		}
	})
}

func TestRingBuffer_PushPop(t *testing.T) {
	rb := NewRingBuffer[string](10)

	t.Run("push single item", func(t *testing.T) {
		if err := rb.Push("a"); err != nil {
			t.Errorf("Push() error = %v", err)
		}
		if rb.Len() != 1 {
			t.Errorf("Len() = %d, want 1", rb.Len())
		}
	})

	t.Run("pop single item", func(t *testing.T) {
		item, err := rb.Pop()
		if err != nil {
			t.Errorf("Pop() error = %v", err)
		}
		if item != "a" {
			t.Errorf("Pop() = %q, want a", item)
		}
		if rb.Len() != 0 {
			t.Errorf("Len() = %d, want 0", rb.Len())
		}
	})

	t.Run("pop from empty queue", func(t *testing.T) {
		_, err := rb.Pop()
		if err != ErrQueueEmpty {
			t.Errorf("Pop() error = %v, want ErrQueueEmpty", err)
		}
	})
}

func TestRingBuffer_FIFO(t *testing.T) {
	rb := NewRingBuffer[int](10)

	for i := 0; i < 5; i++ {
		if err := rb.Push(i); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		item, err := rb.Pop()
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if item != i {
			t.Errorf("Pop() = %d, want %d", item, i)
		}
	}
}

func TestRingBuffer_Full(t *testing.T) {
	rb := NewRingBuffer[int](3)

	for i := 0; i < 3; i++ {
		if err := rb.Push(i); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	if rb.Len() != rb.Cap() {
		t.Errorf("Len() = %d, want %d", rb.Len(), rb.Cap())
	}

	if err := rb.Push(99); err != ErrQueueFull {
		t.Errorf("Push() error = %v, want ErrQueueFull", err)
	}

	if m := rb.Metrics(); m.Dropped != 1 {
		t.Errorf("Metrics().Dropped = %d, want 1", m.Dropped)
	}
}

func TestRingBuffer_Wrap(t *testing.T) {
	rb := NewRingBuffer[int](3)

	for i := 0; i < 3; i++ {
		rb.Push(i)
	}
	rb.Pop()
	rb.Pop()

	for i := 3; i < 5; i++ {
		if err := rb.Push(i); err != nil {
			t.Errorf("Push() error = %v after wrap", err)
		}
	}

	if rb.Len() != 3 {
		t.Errorf("Len() = %d, want 3", rb.Len())
	}

	for _, want := range []int{2, 3, 4} {
		got, _ := rb.Pop()
		if got != want {
			t.Errorf("Pop() = %d, want %d", got, want)
		}
	}
}

func TestRingBuffer_Metrics(t *testing.T) {
	rb := NewRingBuffer[int](5)

	m := rb.Metrics()
	if m.Pushed != 0 || m.Popped != 0 || m.Dropped != 0 {
		t.Errorf("Initial metrics = %+v, want all zeros", m)
	}

	for i := 0; i < 3; i++ {
		rb.Push(i)
	}

	m = rb.Metrics()
	if m.Pushed != 3 {
		t.Errorf("Pushed = %d, want 3", m.Pushed)
	}
	if m.Depth != 3 {
		t.Errorf("Depth = %d, want 3", m.Depth)
	}

	rb.Pop()
	rb.Pop()

	m = rb.Metrics()
	if m.Popped != 2 {
		t.Errorf("Popped = %d, want 2", m.Popped)
	}
	if m.Depth != 1 {
		t.Errorf("Depth = %d, want 1", m.Depth)
	}
}

func TestRingBuffer_Close(t *testing.T) {
	rb := NewRingBuffer[int](10)
	rb.Push(1)

	rb.Close()

	if err := rb.Push(2); err != ErrQueueClosed {
		t.Errorf("Push() error = %v, want ErrQueueClosed", err)
	}

	item, err := rb.Pop()
	if err != nil {
		t.Errorf("Pop() error = %v", err)
	}
	if item != 1 {
		t.Errorf("Pop() = %d, want 1", item)
	}

	if _, err = rb.PopWithTimeout(10 * time.Millisecond); err != ErrQueueClosed {
		t.Errorf("PopWithTimeout() error = %v, want ErrQueueClosed", err)
	}
}

func TestRingBuffer_PopWithTimeout(t *testing.T) {
	rb := NewRingBuffer[int](10)

	t.Run("timeout on empty queue", func(t *testing.T) {
		start := time.Now()
		_, err := rb.PopWithTimeout(50 * time.Millisecond)
		elapsed := time.Since(start)

		if err != ErrQueueEmpty {
			t.Errorf("PopWithTimeout() error = %v, want ErrQueueEmpty", err)
		}
		if elapsed < 40*time.Millisecond {
			t.Errorf("PopWithTimeout() returned too quickly: %v", elapsed)
		}
	})

	t.Run("returns item if available", func(t *testing.T) {
		rb.Push(3)

		item, err := rb.PopWithTimeout(100 * time.Millisecond)
		if err != nil {
			t.Errorf("PopWithTimeout() error = %v", err)
		}
		if item != 3 {
			t.Errorf("PopWithTimeout() = %d, want 3", item)
		}
	})

	t.Run("wakes on push", func(t *testing.T) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			rb.Push(4)
		}()

		item, err := rb.PopWithTimeout(time.Second)
		if err != nil {
			t.Errorf("PopWithTimeout() error = %v", err)
		}
		if item != 4 {
			t.Errorf("PopWithTimeout() = %d, want 4", item)
		}
	})
}

func TestRingBuffer_Concurrent(t *testing.T) {
	rb := NewRingBuffer[int](100)

	const numProducers = 5
	const numConsumers = 3
	const itemsPerProducer = 100

	var producers, consumers sync.WaitGroup
	var produced, consumed uint64

	for i := 0; i < numProducers; i++ {
		producers.Add(1)
		go func() {
			defer producers.Done()
			for j := 0; j < itemsPerProducer; j++ {
				// Drops are expected when the queue is full.
				if err := rb.Push(j); err == nil {
					atomic.AddUint64(&produced, 1)
				}
			}
		}()
	}

	for i := 0; i < numConsumers; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				_, err := rb.PopWithTimeout(20 * time.Millisecond)
				if err == ErrQueueEmpty {
					continue
				}
				if err != nil {
					return
				}
				atomic.AddUint64(&consumed, 1)
			}
		}()
	}

	producers.Wait()
	rb.Close()
	consumers.Wait()

	metrics := rb.Metrics()
	totalExpected := uint64(numProducers * itemsPerProducer)

	if metrics.Pushed+metrics.Dropped != totalExpected {
		t.Errorf("Pushed(%d) + Dropped(%d) = %d, want %d",
			metrics.Pushed, metrics.Dropped, metrics.Pushed+metrics.Dropped, totalExpected)
	}
	if consumed != produced {
		t.Errorf("consumed %d, produced %d", consumed, produced)
	}
}
