package content

// Callback acknowledges the outcome of handling a unit of work.
type Callback interface {
	Succeeded()
	Failed(err error)
}

type noop struct{}

func (noop) Succeeded()   {}
func (noop) Failed(error) {}

var Noop Callback = noop{}

// CallbackFuncs adapts plain functions. Nil fields are skipped.
type CallbackFuncs struct {
	OnSucceeded func()
	OnFailed    func(err error)
}

func (f CallbackFuncs) Succeeded() {
	if f.OnSucceeded != nil {
		f.OnSucceeded()
	}
}

func (f CallbackFuncs) Failed(err error) {
	if f.OnFailed != nil {
		f.OnFailed(err)
	}
}

// Release returns a callback running fn on either outcome.
func Release(fn func()) Callback {
	return CallbackFuncs{
		OnSucceeded: fn,
		OnFailed:    func(error) { fn() },
	}
}
