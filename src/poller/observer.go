package poller

import "context"

// Observer is told about every applied tick and about the session's end.
// Observe runs on the session goroutine; Finished runs on whichever goroutine ended the session.
// The two never overlap and Finished is always the last call for a session.
// Implementations must not block for long and must not cancel the session they observe.
type Observer interface {
	Observe(ctx context.Context, u Update)
	Finished(ctx context.Context, o Outcome)
}

// Funcs adapts plain functions to Observer. Nil fields are skipped.
type Funcs struct {
	OnUpdate func(Update)
	OnFinish func(Outcome)
}

func (f Funcs) Observe(_ context.Context, u Update) {
	if f.OnUpdate != nil {
		f.OnUpdate(u)
	}
}

func (f Funcs) Finished(_ context.Context, o Outcome) {
	if f.OnFinish != nil {
		f.OnFinish(o)
	}
}
