package cache

import "sync"

// NoOwner marks a group id that was probed and found unresolvable: not a
// group, or its owner could not be read. Negative results are memoized too
// so one bad id costs at most one probe per aggregation.
const NoOwner int64 = 0

// OwnerMemo memoizes group-id to owner-user-id lookups for the lifetime of
// one aggregation run. Safe for concurrent use by fanned-out stage workers.
type OwnerMemo struct {
	mu     sync.Mutex
	owners map[int64]int64
}

// NewOwnerMemo creates an empty memo.
func NewOwnerMemo() *OwnerMemo {
	return &OwnerMemo{
		owners: make(map[int64]int64),
	}
}

// Get returns the memoized owner for groupID. ok is false when the group
// has not been resolved yet; the owner may be NoOwner for memoized misses.
func (m *OwnerMemo) Get(groupID int64) (owner int64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok = m.owners[groupID]
	return owner, ok
}

// Set memoizes the owner for groupID. Pass NoOwner for failed resolutions.
func (m *OwnerMemo) Set(groupID, owner int64) {
	m.mu.Lock()
	m.owners[groupID] = owner
	m.mu.Unlock()
}

// Len returns the number of memoized groups.
func (m *OwnerMemo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.owners)
}
