package runtime

import "sync"

// Environment holds the VM's global bindings and the import cache. Unlike
// the original tree-walking interpreter's lexically-chained Environment
// (parent-walking LookupVar), the bytecode VM has exactly one live
// Environment: locals live on the operand stack and upvalues live in
// Closure cells, so this type keeps only what OP_LOAD_GLOBAL/OP_IMPORT need.
type Environment struct {
	mu        sync.RWMutex
	globals   map[string]Value
	constants map[string]bool
	imports   map[string]Value // resolved import path -> exported Object
}

func NewEnvironment() *Environment {
	return &Environment{
		globals:   make(map[string]Value),
		constants: make(map[string]bool),
		imports:   make(map[string]Value),
	}
}

func (e *Environment) DeclareGlobal(name string, v Value, constant bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globals[name] = v
	if constant {
		e.constants[name] = true
	}
}

func (e *Environment) LookupGlobal(name string) (Value, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.globals[name]
	return v, ok
}

// AssignGlobal rewrites an existing global. force bypasses the ConstError
// that a plain OP_SET would raise against a const global (OP_SET_FORCE).
func (e *Environment) AssignGlobal(name string, v Value, force bool) *Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.globals[name]; !ok {
		return NewTypedError(NameErrorKind, "undefined global: "+name, 0, 0)
	}
	if e.constants[name] && !force {
		return NewTypedError(ConstErrorKind, "cannot assign to const global: "+name, 0, 0)
	}
	e.globals[name] = v
	return nil
}

func (e *Environment) CacheImport(path string, exports Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.imports[path] = exports
}

// LookupImport returns the cached exports Object for a resolved import path,
// preserving identity across repeated imports of the same path.
func (e *Environment) LookupImport(path string) (Value, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.imports[path]
	return v, ok
}
