package runtime

// Closure is an upvalue cell: a variable captured by a nested function that
// may outlive the frame that declared it.
type Closure struct {
	Name            string
	FrameName       string
	IsLocal         bool
	Index           int
	Location        *Value // live while the declaring frame is on the stack
	Closed          Value  // heap-promoted copy, valid once Location == &Closed
	InitialLocation *Value
}

// Promote copies the live slot into Closed and rebinds Location to point at
// it, so callers holding this *Closure keep working after the declaring
// frame is torn down. Idempotent: promoting twice is a no-op.
func (c *Closure) Promote() {
	if c.Location == &c.Closed {
		return
	}
	c.Closed = *c.Location
	c.Location = &c.Closed
}

func (c *Closure) Get() Value  { return *c.Location }
func (c *Closure) Set(v Value) { *c.Location = v }

// openClosureSet tracks, per frame, the Closure cells whose Location still
// aliases that frame's slice of the operand stack so they can be promoted
// together at frame teardown.
type openClosureSet struct {
	cells []*Closure
}

func (s *openClosureSet) track(c *Closure) {
	s.cells = append(s.cells, c)
}

func (s *openClosureSet) closeAll() {
	for _, c := range s.cells {
		c.Promote()
	}
	s.cells = nil
}
