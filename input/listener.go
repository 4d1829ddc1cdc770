package input

// ReadListener receives asynchronous notifications. Errors returned from
// OnDataAvailable and OnAllDataRead are passed to OnError.
type ReadListener interface {
	OnDataAvailable() error
	OnAllDataRead() error
	OnError(err error)
}

// ListenerFuncs adapts plain functions; nil fields are no-ops.
type ListenerFuncs struct {
	DataAvailable func() error
	AllDataRead   func() error
	Error         func(err error)
}

func (l ListenerFuncs) OnDataAvailable() error {
	if l.DataAvailable == nil {
		return nil
	}
	return l.DataAvailable()
}

func (l ListenerFuncs) OnAllDataRead() error {
	if l.AllDataRead == nil {
		return nil
	}
	return l.AllDataRead()
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}
