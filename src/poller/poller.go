package poller

import (
	"context"
	"log"
	"math/big"
	"sync"

	"github.com/stake-plus/postoracle/src/logging"
)

// Poller owns the poll sessions of one process, at most one per post id.
type Poller struct {
	reader    StatusReader
	cfg       Config
	logger    *log.Logger
	observers []Observer

	ctx  context.Context
	stop context.CancelFunc

	startMu  sync.Mutex
	mu       sync.Mutex
	sessions map[string]*Session
}

func New(reader StatusReader, cfg Config, logger *log.Logger, observers ...Observer) *Poller {
	ctx, stop := context.WithCancel(context.Background())
	return &Poller{
		reader:    reader,
		cfg:       cfg.withDefaults(),
		logger:    logging.OrDiscard(logger),
		observers: observers,
		ctx:       ctx,
		stop:      stop,
		sessions:  make(map[string]*Session),
	}
}

func (p *Poller) Config() Config { return p.cfg }

// Start begins polling postID. Any session already polling the same id is cancelled first,
// so a caller that starts twice never has two sessions querying one post.
// correlationID is passed through to observers and may be empty.
func (p *Poller) Start(postID *big.Int, correlationID string) *Session {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	key := postID.String()
	if prev := p.Session(postID); prev != nil {
		if prev.Cancel() {
			p.logger.Printf("post %s: replacing active poll session", key)
		}
	}

	s := newSession(p.ctx, postID, correlationID, p.cfg, p.reader, p.observers, p.logger, p.release)
	p.mu.Lock()
	p.sessions[key] = s
	p.mu.Unlock()
	s.start()
	return s
}

// release forgets s once it has ended, unless it has already been replaced.
func (p *Poller) release(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := s.postID.String()
	if p.sessions[key] == s {
		delete(p.sessions, key)
	}
}

// Session returns the live session for postID, or nil.
func (p *Poller) Session(postID *big.Int) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[postID.String()]
}

// Cancel stops polling postID. It reports whether a live session was stopped.
func (p *Poller) Cancel(postID *big.Int) bool {
	s := p.Session(postID)
	if s == nil {
		return false
	}
	return s.Cancel()
}

// Active lists the snapshots of all live sessions.
func (p *Poller) Active() []Snapshot {
	p.mu.Lock()
	live := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		live = append(live, s)
	}
	p.mu.Unlock()

	out := make([]Snapshot, 0, len(live))
	for _, s := range live {
		out = append(out, s.Snapshot())
	}
	return out
}

// StopAll cancels every session. Used on shutdown.
func (p *Poller) StopAll() {
	p.mu.Lock()
	live := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		live = append(live, s)
	}
	p.mu.Unlock()

	for _, s := range live {
		s.Cancel()
	}
	p.stop()
}
