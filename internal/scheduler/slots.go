package scheduler

import (
	"context"

	"github.com/mediavault/mediavault/internal/progress"
)

// slotClass is the static reservation label of a slot.
type slotClass int

const (
	bulkReserved slotClass = iota
	interactiveReserved
)

// slotState tracks one execution slot. Slots 0..bulk-1 are bulk-reserved,
// the rest interactive-reserved. Guarded by the scheduler mutex.
type slotState struct {
	class    slotClass
	occupied bool
	task     TransferTask
	cancel   context.CancelFunc
	meter    *progress.Meter
}

// slotTable is a fixed pool of execution slots. A single free scan with
// two class counters keeps the borrowing rule in one place: interactive
// tasks may take an idle bulk-reserved slot, bulk tasks never take an
// interactive-reserved one.
type slotTable struct {
	slots []slotState
	bulk  int // count of bulk-reserved slots
}

func newSlotTable(bulk, interactive int) *slotTable {
	slots := make([]slotState, bulk+interactive)
	for i := range slots {
		if i < bulk {
			slots[i].class = bulkReserved
		} else {
			slots[i].class = interactiveReserved
		}
	}
	return &slotTable{slots: slots, bulk: bulk}
}

// acquire finds a free slot admissible for the given class and marks it
// occupied. Interactive prefers its reserved slots, then borrows idle
// bulk capacity. Bulk is confined to bulk-reserved slots.
func (t *slotTable) acquire(class PriorityClass) (int, bool) {
	if class == Interactive {
		for i := t.bulk; i < len(t.slots); i++ {
			if !t.slots[i].occupied {
				t.slots[i].occupied = true
				return i, true
			}
		}
	}
	for i := 0; i < t.bulk; i++ {
		if !t.slots[i].occupied {
			t.slots[i].occupied = true
			return i, true
		}
	}
	return -1, false
}

// release frees a slot and clears its occupancy state.
func (t *slotTable) release(id int) {
	if id < 0 || id >= len(t.slots) {
		return
	}
	t.slots[id] = slotState{class: t.slots[id].class}
}

func (t *slotTable) freeCount() int {
	n := 0
	for i := range t.slots {
		if !t.slots[i].occupied {
			n++
		}
	}
	return n
}

func (t *slotTable) occupiedCount() int {
	return len(t.slots) - t.freeCount()
}
