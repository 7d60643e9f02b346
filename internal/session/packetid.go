package session

import (
	"sync"

	"github.com/lumenmq/lighthouse/internal/xerror"
)

// PacketIDAllocator is a monotone packet-id counter in [1, 65535]. It
// skips ids already present in either inflight map and fails with
// ErrNoFreePacketId if a full cycle finds none free.
type PacketIDAllocator struct {
	mu     sync.Mutex
	cursor uint32
}

// Next returns the next unused packet id, as judged by inUse.
func (a *PacketIDAllocator) Next(inUse func(uint16) bool) (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < 65535; i++ {
		a.cursor = a.cursor%65535 + 1
		id := uint16(a.cursor)
		if !inUse(id) {
			return id, nil
		}
	}
	return 0, xerror.ErrNoFreePacketId
}
