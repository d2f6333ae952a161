package jailbridge

import "sync"

// Callable is any locally-held function the codec can register in the
// Reference Store and that a peer can later invoke by id. It is a pointer
// type so that two Callables referring to the "same" function are == to
// each other — the comparison the Value Codec needs to recognize that an
// argument being encoded is one of the already-exported interface members.
// Go function values are not comparable, so this pointer indirection
// carries identity in the handle itself rather than recovering it after
// the fact from a callable-id -> name side table.
type Callable = *callableHandle

type callableHandle struct {
	fn func(args []any) (any, error)
}

// NewCallable wraps a Go function as a Callable handle.
func NewCallable(fn func(args []any) (any, error)) Callable {
	return &callableHandle{fn: fn}
}

// Call invokes the wrapped function.
func (c *callableHandle) Call(args []any) (any, error) {
	return c.fn(args)
}

// Store is the Reference Store: a process-local, append-only mapping from
// monotonically increasing integer ids to locally-held callables. Entries
// are created when the codec encodes a local callable that is not part of
// the exported interface, and are resolved back on incoming "callback"
// envelopes.
//
// Ids are never reused. Free exists, but nothing in this package calls
// it: long-running sessions leak callback ids by design of the protocol
// being modeled, not by omission here.
type Store struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[uint64]Callable
}

// NewStore builds an empty Reference Store. Ids start at 1 so that 0 can
// be reserved by callers as "no id".
func NewStore() *Store {
	return &Store{nextID: 1, entries: make(map[uint64]Callable)}
}

// Put registers a callable and returns its newly assigned id.
func (s *Store) Put(fn Callable) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.entries[id] = fn
	return id
}

// Fetch resolves an id back to its callable, reporting whether it exists.
func (s *Store) Fetch(id uint64) (Callable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn, ok := s.entries[id]
	return fn, ok
}

// Free removes an entry. The dispatcher never invokes this (see the
// Store doc comment); it is provided for completeness and for callers
// that choose to implement their own reference-counting scheme on top.
func (s *Store) Free(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len reports the number of live entries, mostly useful for tests that
// assert against leakage.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
