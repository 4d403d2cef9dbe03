package optimistic

import "context"

// Pending is one background write. A nil *Pending stands for a change that needed no
// write and is already settled.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending { return &Pending{done: make(chan struct{})} }

var settled = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done is closed once the write has committed or been rolled back.
func (p *Pending) Done() <-chan struct{} {
	if p == nil {
		return settled
	}
	return p.done
}

// Wait blocks until the write settles and returns its SyncError, if any. Rollback has
// been applied by the time Wait returns.
func (p *Pending) Wait() error {
	if p == nil {
		return nil
	}
	<-p.done
	return p.err
}

// WaitContext is Wait bounded by ctx. The write keeps running when ctx ends first.
func (p *Pending) WaitContext(ctx context.Context) error {
	select {
	case <-p.Done():
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the SyncError of a settled write, or nil while it is still running.
func (p *Pending) Err() error {
	if p == nil {
		return nil
	}
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}
