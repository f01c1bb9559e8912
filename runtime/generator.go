package runtime

// generatorState is the frozen frame a generator-flagged FunctionObj retains
// across a YIELD. Rather than maintaining a separate evaluator stack per
// live generator, this splices the saved locals window back onto the
// shared operand stack on resume. BREAK/CONTINUE are plain jumps with
// compiler-emitted stack cleanup, so no loop-mark bookkeeping needs to
// survive a suspension either.
type generatorState struct {
	IP          int
	Locals      []Value
	FrameName   string
	TryHandlers []TryHandler
}

// Suspend freezes frame at a YIELD instruction boundary. stackWindow is the
// frame's locals-and-operands slice (stack[frame.FrameStart:sp]), copied so
// later stack growth/reuse can't corrupt it.
func (fn *FunctionObj) Suspend(frame *CallFrame, stackWindow []Value) {
	locals := make([]Value, len(stackWindow))
	copy(locals, stackWindow)
	fn.generatorState = &generatorState{
		IP:          frame.IP,
		Locals:      locals,
		FrameName:   frame.FrameName,
		TryHandlers: append([]TryHandler(nil), frame.TryHandlers...),
	}
	fn.GeneratorDone = false
}

// Resume splices the frozen state back into a fresh CallFrame positioned at
// frameStart in the caller's stack, returning the locals window to copy in.
// ok is false if the generator was never started or has already finished.
func (fn *FunctionObj) Resume(frameStart int) (*CallFrame, []Value, bool) {
	if fn.generatorState == nil || fn.GeneratorDone {
		return nil, nil, false
	}
	st := fn.generatorState
	frame := &CallFrame{
		Function:    fn,
		IP:          st.IP,
		FrameStart:  frameStart,
		FrameName:   st.FrameName,
		TryHandlers: st.TryHandlers,
	}
	fn.generatorState = nil
	return frame, st.Locals, true
}

// Done marks the generator exhausted; every later CALL of the FunctionObj
// returns None without running its body.
func (fn *FunctionObj) Done() {
	fn.generatorState = nil
	fn.GeneratorDone = true
}
