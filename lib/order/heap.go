package order

import (
	"container/heap"
)

// item is a buffered command with its sequence number as priority.
type item struct {
	Sequence uint64
	Value    Sequenced
	index    int // maintained by heap package
}

// seqHeap is a min heap of buffered commands with access by sequence number,
// so a command buffered twice is only kept once.
type seqHeap struct {
	items    []*item
	itemsMap map[uint64]*item
}

func newSeqHeap() *seqHeap {
	return &seqHeap{
		items:    make([]*item, 0),
		itemsMap: make(map[uint64]*item),
	}
}

// Len returns the number of items (part of heap.Interface)
func (h *seqHeap) Len() int { return len(h.items) }

// Less orders by sequence (part of heap.Interface)
func (h *seqHeap) Less(i, j int) bool {
	return h.items[i].Sequence < h.items[j].Sequence
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *seqHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item (part of heap.Interface)
func (h *seqHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.itemsMap[it.Sequence] = it
}

// Pop removes the item with the lowest sequence (part of heap.Interface)
func (h *seqHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	h.items = old[:n-1]
	delete(h.itemsMap, it.Sequence)
	return it
}

// add buffers value. It returns false if the sequence is already buffered.
func (h *seqHeap) add(value Sequenced) bool {
	if _, exists := h.itemsMap[value.Sequence()]; exists {
		return false
	}
	heap.Push(h, &item{Sequence: value.Sequence(), Value: value})
	return true
}

// peek returns the item with the lowest sequence.
func (h *seqHeap) peek() (*item, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// popMin removes and returns the item with the lowest sequence.
func (h *seqHeap) popMin() *item {
	return heap.Pop(h).(*item)
}

func (h *seqHeap) clear() {
	h.items = h.items[:0]
	h.itemsMap = make(map[uint64]*item)
}
