package poller

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/stake-plus/postoracle/src/ledger"
	"github.com/stake-plus/postoracle/src/logging"
)

// StatusReader is the read-only ledger query a session issues each tick.
type StatusReader interface {
	GetPost(ctx context.Context, id *big.Int) (ledger.Post, error)
}

// Session polls one post until Terminal, Exhausted or Cancelled.
//
// One goroutine owns the tick loop, so ticks never overlap; a ticker tick that fires while a
// query is outstanding is dropped. The tick counter and the cancelled flag are checked both
// before a query is dispatched and before its result is applied, so a response that arrives
// after Cancel is discarded. Delivery to observers is serialized with the end of the session:
// once Finished has run, no further Observe call is made.
type Session struct {
	postID    *big.Int
	corrID    string
	cfg       Config
	reader    StatusReader
	observers []Observer
	logger    *log.Logger
	onEnd     func(*Session)

	ctx    context.Context
	obsCtx context.Context
	cancel context.CancelFunc
	ticker *time.Ticker
	ended  chan struct{}
	exited chan struct{}

	// deliver is held while observers run; it is taken before mu.
	deliver   sync.Mutex
	mu        sync.Mutex
	state     State
	tick      int
	cancelled bool
	last      *ledger.Post
	lastErr   error
	startedAt time.Time
	endedAt   time.Time
}

func newSession(parent context.Context, postID *big.Int, corrID string, cfg Config, reader StatusReader, observers []Observer, logger *log.Logger, onEnd func(*Session)) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		postID:    new(big.Int).Set(postID),
		corrID:    corrID,
		cfg:       cfg.withDefaults(),
		reader:    reader,
		observers: observers,
		logger:    logging.OrDiscard(logger),
		onEnd:     onEnd,
		ctx:       ctx,
		obsCtx:    context.WithoutCancel(parent),
		cancel:    cancel,
		ended:     make(chan struct{}),
		exited:    make(chan struct{}),
		state:     Idle,
	}
}

func (s *Session) start() {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		close(s.exited)
		return
	}
	s.state = Polling
	s.startedAt = time.Now()
	s.ticker = time.NewTicker(s.cfg.Interval)
	s.mu.Unlock()

	s.logger.Printf("post %s: polling every %s, up to %d attempts", s.postID, s.cfg.Interval, s.cfg.MaxAttempts)
	go s.run()
}

func (s *Session) run() {
	defer close(s.exited)
	defer s.ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.end(Cancelled)
			return
		case <-s.ticker.C:
		}

		tick, ok := s.beginTick()
		if !ok {
			return
		}
		post, err := s.reader.GetPost(s.ctx, s.postID)
		if !s.applyTick(tick, post, err) {
			return
		}
	}
}

// beginTick claims the next attempt, or reports that the session is over.
func (s *Session) beginTick() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.state != Polling {
		return 0, false
	}
	s.tick++
	return s.tick, true
}

// applyTick records a query result and reports whether polling continues.
func (s *Session) applyTick(tick int, post ledger.Post, err error) bool {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.cancelled || s.state != Polling || s.tick != tick {
		s.mu.Unlock()
		s.logger.Printf("post %s: discarding tick %d result after cancellation", s.postID, tick)
		return false
	}

	u := Update{PostID: s.postID, CorrelationID: s.corrID, Tick: tick}
	if err != nil {
		s.lastErr = err
		u.Err = err
	} else {
		p := post
		s.last = &p
		s.lastErr = nil
		u.Post = &p
		if p.Status.IsTerminal() {
			s.state = Terminal
		}
	}
	if s.state == Polling && s.tick >= s.cfg.MaxAttempts {
		s.state = Exhausted
	}
	u.State = s.state
	next := s.state
	s.mu.Unlock()

	if err != nil {
		s.logger.Printf("post %s: status query %d/%d failed: %s", s.postID, tick, s.cfg.MaxAttempts, logging.Describe(err))
	} else {
		s.logger.Printf("post %s: tick %d/%d status=%s", s.postID, tick, s.cfg.MaxAttempts, post.Status)
	}
	for _, o := range s.observers {
		o.Observe(s.obsCtx, u)
	}

	if next != Polling {
		s.endLocked(next)
		return false
	}
	return true
}

// end moves the session out of Polling exactly once and notifies observers.
// It waits for an update that is being delivered to finish first.
func (s *Session) end(state State) bool {
	if state == Cancelled {
		// Stop new ticks from being claimed while we wait for delivery.
		s.mu.Lock()
		if s.endedAt.IsZero() {
			s.cancelled = true
		}
		s.mu.Unlock()
	}
	s.deliver.Lock()
	defer s.deliver.Unlock()
	return s.endLocked(state)
}

func (s *Session) endLocked(state State) bool {
	s.mu.Lock()
	switch {
	case s.endedAt.IsZero() && (s.state == Polling || s.state == Idle):
		s.state = state
	case s.endedAt.IsZero() && s.state == state:
		// applyTick already set it
	default:
		s.mu.Unlock()
		return false
	}
	if state == Cancelled {
		s.cancelled = true
	}
	s.endedAt = time.Now()
	if s.ticker != nil {
		s.ticker.Stop()
	}
	out := Outcome{PostID: s.postID, CorrelationID: s.corrID, State: s.state, Attempts: s.tick, Last: s.last, LastErr: s.lastErr}
	s.mu.Unlock()

	s.cancel()
	s.logger.Printf("post %s: session %s after %d attempts", s.postID, out.State, out.Attempts)

	if s.onEnd != nil {
		s.onEnd(s)
	}
	for _, o := range s.observers {
		o.Finished(s.obsCtx, out)
	}
	close(s.ended)
	return true
}

// Cancel stops the session. Future ticks never fire and an in-flight result is discarded.
// It returns false when the session had already ended. Cancel blocks while an update is
// being delivered, so observers must not call it on the session they observe.
func (s *Session) Cancel() bool {
	return s.end(Cancelled)
}

func (s *Session) PostID() *big.Int { return new(big.Int).Set(s.postID) }

// Ended is closed when the session leaves Polling.
func (s *Session) Ended() <-chan struct{} { return s.ended }

// Exited is closed when the tick goroutine has returned. This can lag Ended while a
// cancelled query is still in flight.
func (s *Session) Exited() <-chan struct{} { return s.exited }

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.ended:
		snap := s.Snapshot()
		return Outcome{PostID: snap.PostID, CorrelationID: snap.CorrelationID, State: snap.State, Attempts: snap.Attempts, Last: snap.Last, LastErr: snap.LastErr}, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		PostID:        new(big.Int).Set(s.postID),
		CorrelationID: s.corrID,
		State:         s.state,
		Attempts:      s.tick,
		MaxAttempts:   s.cfg.MaxAttempts,
		Interval:      s.cfg.Interval,
		LastErr:       s.lastErr,
		StartedAt:     s.startedAt,
		EndedAt:       s.endedAt,
	}
	if s.last != nil {
		p := *s.last
		snap.Last = &p
	}
	return snap
}
