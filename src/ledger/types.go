package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Status mirrors the contract's PostStatus enum.
type Status uint8

const (
	StatusPending Status = iota
	StatusRejected
	StatusApproved
	StatusFailed
)

var statusNames = [...]string{"Pending", "Rejected", "Approved", "Failed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Valid reports whether s is one of the four known values.
func (s Status) Valid() bool { return int(s) < len(statusNames) }

// IsTerminal is true once the oracle has decided; the value never changes afterwards.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusApproved || s == StatusFailed
}

// ParseStatus accepts a status name, case-insensitively.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, name) {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown post status %q", name)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Post is the read-through view of a ledger-held post.
type Post struct {
	ID              *big.Int
	Author          common.Address
	Username        string
	Status          Status
	SimilarityScore uint64
	IPFSCID         string
	SubmittedAt     time.Time
}

// HasScore is true once the oracle has scored the post.
func (p Post) HasScore() bool { return p.Status != StatusPending }

// GatewayURL links the processed content, or "" when there is no CID yet.
func (p Post) GatewayURL(base string) string {
	if p.IPFSCID == "" {
		return ""
	}
	if base == "" {
		return "ipfs://" + p.IPFSCID
	}
	return strings.TrimRight(base, "/") + "/" + p.IPFSCID
}

// Receipt is the confirmation record of a mined submission.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber *big.Int
	BlockHash   common.Hash
	GasUsed     uint64
	Status      uint64
	From        common.Address
	Logs        []types.Log
}

func receiptFrom(r *types.Receipt, from common.Address) *Receipt {
	out := &Receipt{
		TxHash:      r.TxHash,
		BlockNumber: r.BlockNumber,
		BlockHash:   r.BlockHash,
		GasUsed:     r.GasUsed,
		Status:      r.Status,
		From:        from,
		Logs:        make([]types.Log, 0, len(r.Logs)),
	}
	for _, l := range r.Logs {
		if l != nil {
			out.Logs = append(out.Logs, *l)
		}
	}
	return out
}

var (
	// ErrTransactionRejected means the signer declined the submission.
	ErrTransactionRejected = errors.New("transaction rejected by signer")
	// ErrDomainEventMissing means no log in the receipt decoded as PostSubmitted.
	ErrDomainEventMissing = errors.New("PostSubmitted event not found")
	// ErrDuplicateEvent is returned under the Strict policy when PostSubmitted appears twice.
	ErrDuplicateEvent = errors.New("PostSubmitted event emitted more than once")
	// ErrPostNotFound is returned when getPost yields an empty record.
	ErrPostNotFound = errors.New("post not found")
)

// RevertedError means the ledger refused to execute the submission.
type RevertedError struct {
	TxHash common.Hash
	Reason string
}

func (e *RevertedError) Error() string {
	if e.TxHash == (common.Hash{}) {
		return "transaction reverted: " + e.Reason
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash.Hex(), e.Reason)
}

// NetworkError means the submission or its confirmation could not complete.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return "ledger " + e.Op + ": " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }
