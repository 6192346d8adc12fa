package workflow

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Stage names a pipeline step.
type Stage string

const (
	StageValidated Stage = "validated"
	StageConnected Stage = "connected"
	StageConfirmed Stage = "confirmed"
	StageDecoded   Stage = "decoded"
	StageNotified  Stage = "notified"
	StagePolling   Stage = "polling"
	StageFailed    Stage = "failed"
)

// StageEvent reports pipeline progress. For StageFailed, FailedAt names the step that failed.
type StageEvent struct {
	CorrelationID string
	Stage         Stage
	FailedAt      Stage
	PostID        *big.Int
	TxHash        common.Hash
	Author        common.Address
	Err           error
}

type StageObserver interface {
	Stage(ctx context.Context, ev StageEvent)
}

// StageFunc adapts a function to StageObserver.
type StageFunc func(StageEvent)

func (f StageFunc) Stage(_ context.Context, ev StageEvent) { f(ev) }
