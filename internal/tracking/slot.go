package tracking

import (
	"sync"

	"github.com/banshee-data/depthview/internal/skeleton"
)

// JointSlot holds the most recent completed joint list.
//
// It is a single-slot mailbox: Store overwrites any unconsumed value (last
// result wins) and Take hands the value to exactly one reader, leaving the
// slot empty until the next Store. Writers are tracker completions; the
// reader is the renderer on the display goroutine.
type JointSlot struct {
	mu          sync.Mutex
	list        *skeleton.JointList
	stored      uint64
	overwritten uint64
}

// Store places list in the slot, discarding any unconsumed previous list.
func (s *JointSlot) Store(list *skeleton.JointList) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.list != nil {
		s.overwritten++
	}
	s.list = list
	s.stored++
}

// Take returns the held list and empties the slot. ok is false when the slot
// was empty.
func (s *JointSlot) Take() (list *skeleton.JointList, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, s.list = s.list, nil
	return list, list != nil
}

// Full reports whether a list is waiting to be consumed.
func (s *JointSlot) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list != nil
}

// SlotStats are lifetime counters for a JointSlot.
type SlotStats struct {
	Stored      uint64
	Overwritten uint64 // stores that replaced an unconsumed list
}

// Stats returns the slot's lifetime counters.
func (s *JointSlot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotStats{Stored: s.stored, Overwritten: s.overwritten}
}
