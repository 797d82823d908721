// Package dispatcher implements the priority-queued, multi-bot delivery
// stage: a bounded max-heap keyed on profit (descending) with stable
// enqueue-time tie-breaks, drained by one consumer goroutine per bot behind
// a per-bot token bucket, with fixed-schedule retry and bot rotation on
// transient failure.
package dispatcher

import (
	"container/heap"
	"time"

	"github.com/google/uuid"
)

// Entry is one pick queued for delivery.
type Entry struct {
	DeliveryID  string // correlates every attempt/bot-rotation log line for this entry
	SurebetID   string
	ChannelID   string
	Body        string
	Profit      float64
	EnqueueTime time.Time

	index int // heap.Interface bookkeeping
}

// NewEntry builds an Entry with a fresh delivery-correlation ID.
func NewEntry(surebetID, channelID, body string, profit float64, now time.Time) *Entry {
	return &Entry{
		DeliveryID:  uuid.New().String(),
		SurebetID:   surebetID,
		ChannelID:   channelID,
		Body:        body,
		Profit:      profit,
		EnqueueTime: now,
	}
}

// entryHeap is a max-heap on Profit, with ties broken by the earlier
// EnqueueTime (stable FIFO among equal-priority entries).
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Profit != h[j].Profit {
		return h[i].Profit > h[j].Profit
	}
	return h[i].EnqueueTime.Before(h[j].EnqueueTime)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	entry := x.(*Entry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

// min returns the current lowest-profit entry, or nil if empty. Used by the
// admission policy; O(n) since container/heap only guarantees the root is
// the maximum, not where the minimum sits.
func (h entryHeap) min() *Entry {
	if len(h) == 0 {
		return nil
	}
	min := h[0]
	for _, e := range h[1:] {
		if e.Profit < min.Profit {
			min = e
		}
	}
	return min
}

var _ = heap.Interface(&entryHeap{})
