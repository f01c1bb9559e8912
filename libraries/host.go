package libraries

import (
	"sync"

	"github.com/google/uuid"

	"vortex/runtime"
)

// HostHandles mints and resolves Pointer Values carrying host-side Go state.
// Unlike runtime.HoistedRegistry's internal tokens, these handles are meant
// to cross the host/VM boundary (logged, compared, handed back from a
// native call), so they get unguessable uuid.v4 strings rather than a bare
// counter.
type HostHandles struct {
	mu   sync.Mutex
	data map[string]interface{}
}

func NewHostHandles() *HostHandles {
	return &HostHandles{data: make(map[string]interface{})}
}

func (h *HostHandles) Mint(payload interface{}) runtime.Value {
	handle := uuid.NewString()
	h.mu.Lock()
	h.data[handle] = payload
	h.mu.Unlock()
	return runtime.PointerVal(handle, payload)
}

func (h *HostHandles) Resolve(handle string) (interface{}, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.data[handle]
	return v, ok
}

func (h *HostHandles) Release(handle string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.data, handle)
}

// RegisterHost installs natives embedders commonly need to pass opaque
// handles back into host callbacks without leaking implementation detail
// into Vortex source: handle_id returns the comparable string for a Pointer
// and is_handle checks the tag without risking a panic on the wrong type.
func RegisterHost(env *runtime.Environment, handles *HostHandles) {
	native(env, "handle_id", func(args []runtime.Value) runtime.Value {
		p := arg(args, 0)
		if !p.IsPointer() {
			return runtime.ErrorVal(runtime.TypeErrorKind, "handle_id expects a pointer value")
		}
		return runtime.StringVal(p.Ptr.Handle)
	})
	native(env, "is_handle", func(args []runtime.Value) runtime.Value {
		return runtime.BooleanVal(arg(args, 0).IsPointer())
	})
}
