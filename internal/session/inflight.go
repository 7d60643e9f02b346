package session

import (
	"container/list"
	"sync"
)

// InflightMap is an insertion-ordered map keyed by packet id. Using an
// insertion-ordered structure (rather than a plain Go map, which has no
// iteration order) lets reconnect replay walk pending messages in the
// order they were first sent (MQTT-4.4.0-1).
type InflightMap struct {
	mu    sync.Mutex
	order *list.List
	elems map[uint16]*list.Element
	data  map[uint16]*ApplicationMessage
}

// NewInflightMap returns an empty InflightMap.
func NewInflightMap() *InflightMap {
	return &InflightMap{
		order: list.New(),
		elems: make(map[uint16]*list.Element),
		data:  make(map[uint16]*ApplicationMessage),
	}
}

// Set inserts or overwrites the entry for id, preserving original
// insertion order on overwrite.
func (m *InflightMap) Set(id uint16, msg *ApplicationMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.elems[id]; !ok {
		m.elems[id] = m.order.PushBack(id)
	}
	m.data[id] = msg
}

// Get returns the entry for id, if present.
func (m *InflightMap) Get(id uint16) (*ApplicationMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.data[id]
	return msg, ok
}

// Has reports whether id is present.
func (m *InflightMap) Has(id uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[id]
	return ok
}

// Delete removes id, if present.
func (m *InflightMap) Delete(id uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.elems[id]; ok {
		m.order.Remove(e)
		delete(m.elems, id)
		delete(m.data, id)
	}
}

// Len returns the number of entries.
func (m *InflightMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Ordered returns a snapshot of (id, message) pairs in insertion order,
// used to replay inflight messages on reconnect.
func (m *InflightMap) Ordered() []*ApplicationMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ApplicationMessage, 0, m.order.Len())
	for e := m.order.Front(); e != nil; e = e.Next() {
		id := e.Value.(uint16)
		out = append(out, m.data[id])
	}
	return out
}

// Clear removes every entry.
func (m *InflightMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order.Init()
	m.elems = make(map[uint16]*list.Element)
	m.data = make(map[uint16]*ApplicationMessage)
}
