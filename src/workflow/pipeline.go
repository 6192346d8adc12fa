package workflow

import (
	"context"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/stake-plus/postoracle/src/config"
	"github.com/stake-plus/postoracle/src/ledger"
	"github.com/stake-plus/postoracle/src/logging"
	"github.com/stake-plus/postoracle/src/oracle"
	"github.com/stake-plus/postoracle/src/poller"
	"github.com/stake-plus/postoracle/src/wallet"
	"github.com/stake-plus/postoracle/src/webclient"
)

// Writer is a connected, account-bound ledger client. *ledger.WriteClient satisfies it.
type Writer interface {
	Account() common.Address
	Submit(ctx context.Context, username string) (*ledger.Receipt, error)
	Close()
}

// WriterOpener connects a Writer through a wallet provider.
type WriterOpener func(ctx context.Context, provider wallet.Provider) (Writer, error)

type Notifier interface {
	Notify(ctx context.Context, postID *big.Int, content, username string, author common.Address) error
}

// Deps are the collaborators of a Pipeline. Provider may be nil when no wallet is configured.
type Deps struct {
	Provider   wallet.Provider
	OpenWriter WriterOpener
	Decoder    *ledger.Decoder
	Notifier   Notifier
	Reader     poller.StatusReader
	Poller     *poller.Poller
	Stages     []StageObserver
	Logger     *log.Logger
}

// Pipeline runs connect, submit, decode, notify and poll, in that order.
// A failing stage stops the run and its typed error is returned unchanged.
type Pipeline struct {
	provider   wallet.Provider
	openWriter WriterOpener
	decoder    *ledger.Decoder
	notifier   Notifier
	reader     poller.StatusReader
	poller     *poller.Poller
	stages     []StageObserver
	logger     *log.Logger
	close      func()
}

func New(d Deps) *Pipeline {
	if d.Decoder == nil {
		d.Decoder = ledger.NewDecoder(nil, common.Address{}, ledger.FirstWins)
	}
	if d.Poller == nil {
		d.Poller = poller.New(d.Reader, poller.DefaultConfig(), d.Logger)
	}
	return &Pipeline{
		provider:   d.Provider,
		openWriter: d.OpenWriter,
		decoder:    d.Decoder,
		notifier:   d.Notifier,
		reader:     d.Reader,
		poller:     d.Poller,
		stages:     d.Stages,
		logger:     logging.OrDiscard(d.Logger),
		close:      func() {},
	}
}

// Hooks attach observers when a Pipeline is opened from config.
type Hooks struct {
	Poll   []poller.Observer
	Stages []StageObserver
}

// Open wires a Pipeline against the configured RPC endpoint and oracle.
func Open(ctx context.Context, cfg config.Config, provider wallet.Provider, logger *log.Logger, hooks Hooks) (*Pipeline, error) {
	reader, err := ledger.OpenReadClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := ledger.LoadSchema(cfg)
	if err != nil {
		reader.Close()
		return nil, err
	}

	p := New(Deps{
		Provider: provider,
		OpenWriter: func(ctx context.Context, prov wallet.Provider) (Writer, error) {
			w, err := ledger.OpenWriteClient(ctx, cfg, prov, logger)
			if err != nil {
				return nil, err
			}
			return w, nil
		},
		Decoder:  ledger.NewDecoder(s, cfg.Contract(), duplicatePolicy(cfg)),
		Notifier: oracle.NewNotifier(cfg.OracleEndpoint(), webclient.NewDefault(cfg.HTTPTimeout), logger),
		Reader:   reader,
		Poller: poller.New(reader, poller.Config{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.PollMaxAttempts,
		}, logger, hooks.Poll...),
		Stages: hooks.Stages,
		Logger: logger,
	})
	p.close = reader.Close
	return p, nil
}

// Connect asks the wallet for an account without submitting anything.
func (p *Pipeline) Connect(ctx context.Context) (common.Address, error) {
	if p.provider == nil {
		return common.Address{}, wallet.ErrWalletUnavailable
	}
	account, err := p.provider.RequestAccount(ctx)
	if err != nil {
		return common.Address{}, err
	}
	p.logger.Printf("connected %s wallet account %s", p.provider.Name(), account.Hex())
	return account, nil
}

// Submit runs the whole pipeline for req. On success a poll session is already running.
func (p *Pipeline) Submit(ctx context.Context, req Request) (*Submission, error) {
	corr := uuid.NewString()
	ev := StageEvent{CorrelationID: corr}

	req, err := req.normalize()
	if err != nil {
		return nil, p.fail(ctx, ev, StageValidated, err)
	}
	fp := oracle.Fingerprint(req.Content)
	p.logger.Printf("[%s] submission from %q, content %s (%d bytes)", corr, req.Username, fp, len(req.Content))

	if p.provider == nil || p.openWriter == nil {
		return nil, p.fail(ctx, ev, StageConnected, wallet.ErrWalletUnavailable)
	}
	w, err := p.openWriter(ctx, p.provider)
	if err != nil {
		return nil, p.fail(ctx, ev, StageConnected, err)
	}
	defer w.Close()
	ev.Author = w.Account()
	p.emit(ctx, ev, StageConnected)

	receipt, err := w.Submit(ctx, req.Username)
	if err != nil {
		return nil, p.fail(ctx, ev, StageConfirmed, err)
	}
	// The post id is consumed on-chain now. The remaining stages must finish even if the
	// caller goes away; the notifier is bounded by its HTTP client timeout.
	ctx = context.WithoutCancel(ctx)
	ev.TxHash = receipt.TxHash
	p.logger.Printf("[%s] tx %s confirmed in block %d", corr, receipt.TxHash.Hex(), receipt.BlockNumber)
	p.emit(ctx, ev, StageConfirmed)

	postID, err := p.decoder.DecodePostID(receipt)
	if err != nil {
		return nil, p.fail(ctx, ev, StageDecoded, err)
	}
	ev.PostID = postID
	p.emit(ctx, ev, StageDecoded)

	if err := p.notifier.Notify(ctx, postID, req.Content, req.Username, ev.Author); err != nil {
		nerr := &NotifyError{CorrelationID: corr, PostID: postID, TxHash: receipt.TxHash, Err: err}
		return nil, p.fail(ctx, ev, StageNotified, nerr)
	}
	p.emit(ctx, ev, StageNotified)

	session := p.poller.Start(postID, corr)
	p.emit(ctx, ev, StagePolling)
	p.logger.Printf("[%s] post %s submitted by %s, polling", corr, postID, ev.Author.Hex())

	return &Submission{
		CorrelationID: corr,
		PostID:        postID,
		TxHash:        receipt.TxHash,
		Author:        ev.Author,
		Fingerprint:   fp,
		Session:       session,
	}, nil
}

// Status reads the current ledger view of a post.
func (p *Pipeline) Status(ctx context.Context, postID *big.Int) (ledger.Post, error) {
	return p.reader.GetPost(ctx, postID)
}

// Watch (re)starts polling an existing post, replacing any live session for it.
func (p *Pipeline) Watch(postID *big.Int) *poller.Session {
	corr := uuid.NewString()
	p.logger.Printf("[%s] watching post %s", corr, postID)
	return p.poller.Start(postID, corr)
}

// Session returns the live poll session for postID, or nil.
func (p *Pipeline) Session(postID *big.Int) *poller.Session {
	return p.poller.Session(postID)
}

// Cancel stops polling postID.
func (p *Pipeline) Cancel(postID *big.Int) bool {
	return p.poller.Cancel(postID)
}

func (p *Pipeline) Poller() *poller.Poller { return p.poller }

// Close stops every poll session and releases the read client.
func (p *Pipeline) Close() {
	p.poller.StopAll()
	p.close()
}

func (p *Pipeline) emit(ctx context.Context, ev StageEvent, stage Stage) {
	ev.Stage = stage
	for _, o := range p.stages {
		o.Stage(ctx, ev)
	}
}

func (p *Pipeline) fail(ctx context.Context, ev StageEvent, at Stage, err error) error {
	p.logger.Printf("[%s] %s stage failed: %s", ev.CorrelationID, at, logging.Describe(err))
	ev.FailedAt = at
	ev.Err = err
	p.emit(ctx, ev, StageFailed)
	return err
}

func duplicatePolicy(cfg config.Config) ledger.DuplicatePolicy {
	if cfg.StrictEvents {
		return ledger.Strict
	}
	return ledger.FirstWins
}
