package runtime

import "sync"

// hoistedEntry pairs a host-held Value as it was first hoisted with its
// heap-promoted copy, which Set may later replace.
type hoistedEntry struct {
	original Value
	promoted Value
}

// HoistedRegistry lets host (native) code keep a Value alive across VM
// frames. Tokens are a simple incrementing counter: this registry is purely
// internal-process, so there is nothing for github.com/google/uuid to buy it
// (uuid is instead used for the host-facing Pointer handles minted in
// libraries/host.go, which do need to be unguessable/loggable by a host).
type HoistedRegistry struct {
	mu      sync.Mutex
	nextTok int64
	entries map[int64]*hoistedEntry
}

func NewHoistedRegistry() *HoistedRegistry {
	return &HoistedRegistry{entries: make(map[int64]*hoistedEntry)}
}

// Hoist copies v onto the heap and returns a fresh token identifying it.
func (r *HoistedRegistry) Hoist(v Value) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextTok++
	tok := r.nextTok
	r.entries[tok] = &hoistedEntry{original: v, promoted: v}
	return tok
}

// Get returns the promoted copy for a token, or (_, false) if unknown.
func (r *HoistedRegistry) Get(tok int64) (Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tok]
	if !ok {
		return Value{}, false
	}
	return e.promoted, true
}

// Set overwrites the promoted copy held for a token (host mutated it).
func (r *HoistedRegistry) Set(tok int64, v Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[tok]; ok {
		e.promoted = v
	}
}

// Release drops a token, allowing the promoted copy to be garbage collected.
func (r *HoistedRegistry) Release(tok int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, tok)
}
