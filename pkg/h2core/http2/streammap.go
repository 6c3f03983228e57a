package http2

import (
	"fmt"
	"sort"
)

// streamAction is what a modify transformer asks the map to do with the
// stream once the transformer returns.
type streamAction uint8

const (
	keepStream streamAction = iota
	dropStream
)

// streamMap indexes the connection's live streams by ID.
//
// It keeps two ascending buffers, one per initiator class: stream IDs
// from one peer only ever grow (RFC 7540 §5.1.1), so inserts are always
// tail appends and the sorted invariant holds for free. Lookup is a
// binary search over a contiguous run; removal is O(1) at either end,
// which covers the common cases of long-lived streams at the front and
// short-lived ones near the back. The map never copies its backing
// storage during a modify.
type streamMap struct {
	client []*Stream // odd IDs, ascending
	server []*Stream // even IDs, ascending
}

// buffer returns the buffer the ID belongs to by parity.
func (m *streamMap) buffer(streamID uint32) *[]*Stream {
	if streamID%2 == 1 {
		return &m.client
	}
	return &m.server
}

// Len returns the number of live streams.
func (m *streamMap) Len() int {
	return len(m.client) + len(m.server)
}

// search returns the index of streamID in buf and whether it is present.
func search(buf []*Stream, streamID uint32) (int, bool) {
	i := sort.Search(len(buf), func(i int) bool { return buf[i].id >= streamID })
	return i, i < len(buf) && buf[i].id == streamID
}

// Insert appends a stream to its buffer. The ID must be strictly greater
// than every ID already in the buffer; a violation is a bug in the
// caller, not a protocol condition, and aborts loudly.
func (m *streamMap) Insert(st *Stream) {
	buf := m.buffer(st.id)
	if n := len(*buf); n > 0 && (*buf)[n-1].id >= st.id {
		panic(fmt.Sprintf("http2: stream map insert out of order: %d after %d", st.id, (*buf)[n-1].id))
	}
	*buf = append(*buf, st)
}

// Lookup returns the stream with the given ID, if present.
func (m *streamMap) Lookup(streamID uint32) (*Stream, bool) {
	buf := *m.buffer(streamID)
	i, ok := search(buf, streamID)
	if !ok {
		return nil, false
	}
	return buf[i], true
}

// Remove drops the stream with the given ID and returns it.
func (m *streamMap) Remove(streamID uint32) (*Stream, bool) {
	buf := m.buffer(streamID)
	i, ok := search(*buf, streamID)
	if !ok {
		return nil, false
	}
	st := (*buf)[i]
	removeAt(buf, i)
	return st, true
}

// removeAt deletes buf[i]. The first element is dropped by reslicing
// and the last by truncating, so removal at either end is O(1).
func removeAt(buf *[]*Stream, i int) {
	if i == 0 {
		(*buf)[0] = nil
		*buf = (*buf)[1:]
		return
	}
	copy((*buf)[i:], (*buf)[i+1:])
	(*buf)[len(*buf)-1] = nil
	*buf = (*buf)[:len(*buf)-1]
}

// Modify runs f against the stream with the given ID, in place, then
// keeps or drops the stream as f requests. Returns false if the ID is
// absent; the caller decides whether that is an error.
func (m *streamMap) Modify(streamID uint32, f func(*Stream) streamAction) bool {
	buf := m.buffer(streamID)
	i, ok := search(*buf, streamID)
	if !ok {
		return false
	}
	if f((*buf)[i]) == dropStream {
		removeAt(buf, i)
	}
	return true
}

// ModifyOrCreate runs f against the stream with the given ID, inserting
// the stream create produces first if the ID is absent. A created stream
// that f asks to keep lands at its buffer's tail, so creation is subject
// to the same monotonicity contract as Insert.
func (m *streamMap) ModifyOrCreate(streamID uint32, create func() *Stream, f func(*Stream) streamAction) {
	if m.Modify(streamID, f) {
		return
	}
	st := create()
	if f(st) == keepStream {
		m.Insert(st)
	}
}

// ForEach visits every stream in ascending ID order within each
// initiator class, client buffer first. Returning false stops the walk.
// The visitor must not insert or remove streams.
func (m *streamMap) ForEach(f func(*Stream) bool) {
	for _, st := range m.client {
		if !f(st) {
			return
		}
	}
	for _, st := range m.server {
		if !f(st) {
			return
		}
	}
}

// DropWhere removes every stream the predicate selects and returns the
// dropped IDs in strictly increasing order across both buffers.
func (m *streamMap) DropWhere(pred func(*Stream) bool) []uint32 {
	var dropped []uint32
	for _, buf := range []*[]*Stream{&m.client, &m.server} {
		kept := (*buf)[:0]
		for _, st := range *buf {
			if pred(st) {
				dropped = append(dropped, st.id)
			} else {
				kept = append(kept, st)
			}
		}
		for i := len(kept); i < len(*buf); i++ {
			(*buf)[i] = nil
		}
		*buf = kept
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i] < dropped[j] })
	return dropped
}
