package runtime

// fireOnChange invokes a Value's on_change observer, if any, with the old
// and new value. Recursion on the same Value identity is suppressed: a
// hook may not recursively fire on the same Value identity while executing.
func (vm *VM) fireOnChange(v *Value, oldVal, newVal Value) {
	if v.Hooks == nil || v.Hooks.OnChangeHook == nil {
		return
	}
	if vm.firingHooks[v.ID] {
		return
	}
	vm.firingHooks[v.ID] = true
	defer delete(vm.firingHooks, v.ID)
	vm.invokeHook(*v.Hooks.OnChangeHook, []Value{oldVal, newVal})
}

// fireOnAccess invokes a Value's on_access observer, if any, with the
// current value. Each OP_LOAD fires its own invocation, so reading the same
// variable twice in one expression (`x + x`) fires twice (Open Question
// resolution, see DESIGN.md).
func (vm *VM) fireOnAccess(v *Value) {
	if v.Hooks == nil || v.Hooks.OnAccessHook == nil {
		return
	}
	if vm.firingHooks[v.ID] {
		return
	}
	vm.firingHooks[v.ID] = true
	defer delete(vm.firingHooks, v.ID)
	vm.invokeHook(*v.Hooks.OnAccessHook, []Value{*v})
}
