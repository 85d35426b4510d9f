// Package ids assigns dense integer handles to external string
// identifiers, preserving insertion order.
package ids

// Id is a dense, zero-based integer handle.
type Id uint32

// Mapper is a bidirectional map between external string keys and dense
// integers, in order of first sighting. Not safe for concurrent use; a
// fresh Mapper is constructed per ingestion call and discarded once its
// offsets have been folded into the graph (global counters, no
// singletons).
type Mapper struct {
	byKey []string
	index map[string]Id
}

// NewMapper returns an empty Mapper.
func NewMapper() *Mapper {
	return &Mapper{index: make(map[string]Id)}
}

// GetOrInsert returns key's id, assigning the next dense id if key has not
// been seen before. Idempotent.
func (m *Mapper) GetOrInsert(key string) Id {
	if id, ok := m.index[key]; ok {
		return id
	}
	id := Id(len(m.byKey))
	m.byKey = append(m.byKey, key)
	m.index[key] = id
	return id
}

// Get returns key's id without inserting it.
func (m *Mapper) Get(key string) (Id, bool) {
	id, ok := m.index[key]
	return id, ok
}

// Name returns the key that was assigned id, if any.
func (m *Mapper) Name(id Id) (string, bool) {
	if int(id) < 0 || int(id) >= len(m.byKey) {
		return "", false
	}
	return m.byKey[id], true
}

// Len returns the number of distinct keys seen so far. The offset added to
// feed-local ids when merging into the graph comes from the graph's table
// sizes, not from Len.
func (m *Mapper) Len() int {
	return len(m.byKey)
}
