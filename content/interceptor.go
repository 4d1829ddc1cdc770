package content

// Interceptor transforms payload units before a reader sees them.
//
// Returning nil means the input was absorbed and nothing is ready yet, the
// producer will feed it more. An interceptor fails the stream by returning
// an error sentinel.
//
// A unit only partly consumed downstream is intercepted again, so the same
// *Content may be seen more than once.
type Interceptor interface {
	Intercept(c *Content) *Content
}

type InterceptorFunc func(c *Content) *Content

func (f InterceptorFunc) Intercept(c *Content) *Content { return f(c) }

// Releaser is implemented by interceptors holding resources that must be
// freed when the pipeline recycles.
type Releaser interface {
	Release()
}

type chain []Interceptor

// Chain composes interceptors left to right. Nil links are dropped.
func Chain(interceptors ...Interceptor) Interceptor {
	var c chain
	for _, i := range interceptors {
		switch i := i.(type) {
		case nil:
		case chain:
			c = append(c, i...)
		default:
			c = append(c, i)
		}
	}
	switch len(c) {
	case 0:
		return nil
	case 1:
		return c[0]
	}
	return c
}

// Intercept stops at the first link that absorbs its input or fails the
// stream; later links only ever see payload units.
func (c chain) Intercept(in *Content) *Content {
	for _, i := range c {
		in = i.Intercept(in)
		if in == nil || in.IsSpecial() {
			return in
		}
	}
	return in
}

func (c chain) Release() {
	for _, i := range c {
		Free(i)
	}
}

// Free releases i if it holds resources.
func Free(i Interceptor) {
	if r, ok := i.(Releaser); ok {
		r.Release()
	}
}
