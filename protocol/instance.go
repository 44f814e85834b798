package protocol

import "sync"

// InstanceIDs allocates request instance IDs for one endpoint.
// IDs are handed out monotonically modulo InstanceIDCount.
type InstanceIDs struct {
	mu   sync.Mutex
	next uint8
}

// NewInstanceIDs returns an allocator whose first ID is start.
func NewInstanceIDs(start uint8) *InstanceIDs {
	return &InstanceIDs{next: start % InstanceIDCount}
}

// Next returns a fresh instance ID.
func (a *InstanceIDs) Next() uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.next
	a.next = (a.next + 1) % InstanceIDCount
	return id
}

// Peek returns the ID the next call to Next will return.
func (a *InstanceIDs) Peek() uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}
