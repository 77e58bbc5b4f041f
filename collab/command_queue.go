package collab

import (
	"errors"
	"sync"
	"time"
)

var ErrQueueFull = errors.New("command queue full")

type commandRecord struct {
	user        string
	commandText string
	enqueueTime time.Time
}

// commandQueue is the single fifo shared by all producers.
// Arrival order is the batch order; ties are broken by enqueue
// serialization under the state lock.
type commandQueue struct {
	stateLock sync.Mutex

	records  []*commandRecord
	maxCount int
}

func newCommandQueue(maxCount int) *commandQueue {
	return &commandQueue{
		records:  []*commandRecord{},
		maxCount: maxCount,
	}
}

func (self *commandQueue) Enqueue(user string, commandText string) error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if 0 < self.maxCount && self.maxCount <= len(self.records) {
		return ErrQueueFull
	}
	self.records = append(self.records, &commandRecord{
		user:        user,
		commandText: commandText,
		enqueueTime: time.Now(),
	})
	return nil
}

// Drain detaches and returns the current head in arrival order.
func (self *commandQueue) Drain() []*commandRecord {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	records := self.records
	self.records = []*commandRecord{}
	return records
}

func (self *commandQueue) Size() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.records)
}
