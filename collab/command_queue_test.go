package collab

import (
	"fmt"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestCommandQueueFifo(t *testing.T) {
	queue := newCommandQueue(0)

	for i := 0; i < 10; i += 1 {
		assert.Equal(t, nil, queue.Enqueue("alice", fmt.Sprintf("INSERT 0 %d", i)))
	}
	assert.Equal(t, 10, queue.Size())

	records := queue.Drain()
	assert.Equal(t, 10, len(records))
	assert.Equal(t, 0, queue.Size())
	for i, record := range records {
		assert.Equal(t, "alice", record.user)
		assert.Equal(t, fmt.Sprintf("INSERT 0 %d", i), record.commandText)
	}

	assert.Equal(t, 0, len(queue.Drain()))
}

func TestCommandQueueBackpressure(t *testing.T) {
	queue := newCommandQueue(2)

	assert.Equal(t, nil, queue.Enqueue("alice", "INSERT 0 a"))
	assert.Equal(t, nil, queue.Enqueue("alice", "INSERT 0 b"))
	assert.Equal(t, ErrQueueFull, queue.Enqueue("alice", "INSERT 0 c"))

	queue.Drain()
	assert.Equal(t, nil, queue.Enqueue("alice", "INSERT 0 d"))
}

func TestCommandQueueConcurrentProducers(t *testing.T) {
	queue := newCommandQueue(0)

	n := 32
	var waitGroup sync.WaitGroup
	for i := 0; i < n; i += 1 {
		waitGroup.Add(1)
		go func(i int) {
			defer waitGroup.Done()
			queue.Enqueue(fmt.Sprintf("user%d", i), "NEWLINE 0")
		}(i)
	}
	waitGroup.Wait()

	assert.Equal(t, n, len(queue.Drain()))
}
