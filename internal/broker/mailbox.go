package broker

import (
	"container/heap"
	"sync"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
)

// messageHeap is a heap of messages ordered by messaging.Less.
// Implements container/heap.Interface.
type messageHeap []messaging.Message

func (h messageHeap) Len() int           { return len(h) }
func (h messageHeap) Less(i, j int) bool { return messaging.Less(h[i], h[j]) }
func (h messageHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *messageHeap) Push(x any)        { *h = append(*h, x.(messaging.Message)) }
func (h *messageHeap) Pop() any {
	old := *h
	msg := old[len(old)-1]
	old[len(old)-1] = messaging.Message{}
	*h = old[:len(old)-1]
	return msg
}

// mailbox is a single agent's queue of undelivered messages.
type mailbox struct {
	mu       sync.Mutex
	messages messageHeap
}

func newMailbox() *mailbox {
	return &mailbox{}
}

// push inserts msg. Caller must hold mb.mu.
func (mb *mailbox) push(msg messaging.Message) {
	heap.Push(&mb.messages, msg)
}

// drain removes and returns every queued message in dequeue order.
func (mb *mailbox) drain() []messaging.Message {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	out := make([]messaging.Message, 0, len(mb.messages))
	for mb.messages.Len() > 0 {
		out = append(out, heap.Pop(&mb.messages).(messaging.Message))
	}
	mb.messages = nil
	return out
}

func (mb *mailbox) len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.messages)
}
