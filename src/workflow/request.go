package workflow

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stake-plus/postoracle/src/poller"
)

var ErrInvalidRequest = errors.New("invalid submission")

// Request is one user submission. It is never persisted.
type Request struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

func (r Request) normalize() (Request, error) {
	r.Username = strings.TrimSpace(r.Username)
	r.Content = strings.TrimSpace(r.Content)
	switch {
	case r.Username == "" && r.Content == "":
		return r, fmt.Errorf("%w: username and content are required", ErrInvalidRequest)
	case r.Username == "":
		return r, fmt.Errorf("%w: username is required", ErrInvalidRequest)
	case r.Content == "":
		return r, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	return r, nil
}

// Submission is what a successful pipeline run hands back. Session is already polling.
type Submission struct {
	CorrelationID string
	PostID        *big.Int
	TxHash        common.Hash
	Author        common.Address
	Fingerprint   string
	Session       *poller.Session
}

// NotifyError means the post is on-chain but the oracle never accepted its content.
// No poll session is started for it.
type NotifyError struct {
	CorrelationID string
	PostID        *big.Int
	TxHash        common.Hash
	Err           error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("post %s is on-chain (tx %s) but was not processed: %v", e.PostID, e.TxHash.Hex(), e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }
