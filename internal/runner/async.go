package runner

// Call is a Run executing on its own goroutine.
type Call struct {
	done chan struct{}
	res  *Result
	err  error
}

// Go runs req on a new goroutine and returns immediately. The process is
// run exactly as Run would run it; only the wait moves off the caller.
func (r *Runner) Go(req Request) *Call {
	return GoFunc(r.Run, req)
}

// GoFunc runs fn(req) on a new goroutine. It lets anything with Run's
// signature share the same adapter.
func GoFunc(fn func(Request) (*Result, error), req Request) *Call {
	c := &Call{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		c.res, c.err = fn(req)
	}()
	return c
}

// Done is closed once the process has terminated and its output is ready.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call completes and returns what Run returned.
func (c *Call) Wait() (*Result, error) {
	<-c.done
	return c.res, c.err
}
