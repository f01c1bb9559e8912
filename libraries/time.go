package libraries

import (
	"time"

	"vortex/runtime"
)

// RegisterTime installs wall-clock natives. sleep blocks the calling
// goroutine, which for this single-threaded VM means the whole program.
func RegisterTime(env *runtime.Environment) {
	native(env, "now", func(args []runtime.Value) runtime.Value {
		return runtime.NumberVal(float64(time.Now().UnixNano()) / 1e9)
	})
	native(env, "millis", func(args []runtime.Value) runtime.Value {
		return runtime.NumberVal(float64(time.Now().UnixNano()) / 1e6)
	})
	native(env, "sleep", func(args []runtime.Value) runtime.Value {
		sec := arg(args, 0)
		if sec.IsNumber() {
			time.Sleep(time.Duration(sec.Num * float64(time.Second)))
		}
		return runtime.NoneVal()
	})
}
