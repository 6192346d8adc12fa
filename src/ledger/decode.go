package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stake-plus/postoracle/src/ledger/schema"
)

// DuplicatePolicy decides what a second PostSubmitted in one receipt means.
type DuplicatePolicy int

const (
	// FirstWins stops at the earliest match.
	FirstWins DuplicatePolicy = iota
	// Strict scans every log and fails if PostSubmitted appears more than once.
	Strict
)

var (
	errOtherContract = errors.New("log from another contract")
	errOtherEvent    = errors.New("not a PostSubmitted log")
	errTopicCount    = errors.New("topic count does not match indexed inputs")
)

// Decoder recovers the post id from a submission receipt.
type Decoder struct {
	event    abi.Event
	indexed  abi.Arguments
	contract common.Address
	policy   DuplicatePolicy
}

// NewDecoder binds to contract when it is non-zero; logs from other addresses are skipped.
func NewDecoder(s *schema.Schema, contract common.Address, policy DuplicatePolicy) *Decoder {
	if s == nil {
		s = schema.Default()
	}
	ev := s.Submitted()
	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	return &Decoder{event: ev, indexed: indexed, contract: contract, policy: policy}
}

// decodeResult is one log's outcome; err is never fatal to the scan.
type decodeResult struct {
	id  *big.Int
	err error
}

// DecodePostID returns the first input of the earliest PostSubmitted log in r.
func (d *Decoder) DecodePostID(r *Receipt) (*big.Int, error) {
	if r == nil {
		return nil, ErrDomainEventMissing
	}

	var found *big.Int
	for i := range r.Logs {
		res := d.attempt(&r.Logs[i])
		if res.err != nil {
			continue
		}
		if found == nil {
			found = res.id
			if d.policy == FirstWins {
				break
			}
			continue
		}
		return nil, fmt.Errorf("%w: tx %s ids %s and %s", ErrDuplicateEvent, r.TxHash.Hex(), found, res.id)
	}

	if found == nil {
		return nil, fmt.Errorf("%w in tx %s (%d logs)", ErrDomainEventMissing, r.TxHash.Hex(), len(r.Logs))
	}
	return found, nil
}

func (d *Decoder) attempt(l *types.Log) decodeResult {
	if d.contract != (common.Address{}) && l.Address != d.contract {
		return decodeResult{err: errOtherContract}
	}
	if len(l.Topics) == 0 || l.Topics[0] != d.event.ID {
		return decodeResult{err: errOtherEvent}
	}
	if len(l.Topics)-1 != len(d.indexed) {
		return decodeResult{err: errTopicCount}
	}

	values := make(map[string]interface{}, len(d.event.Inputs))
	if err := d.event.Inputs.UnpackIntoMap(values, l.Data); err != nil {
		return decodeResult{err: err}
	}
	if err := abi.ParseTopicsIntoMap(values, d.indexed, l.Topics[1:]); err != nil {
		return decodeResult{err: err}
	}

	first := d.event.Inputs[0].Name
	switch v := values[first].(type) {
	case *big.Int:
		if v == nil {
			return decodeResult{err: fmt.Errorf("%s is nil", first)}
		}
		return decodeResult{id: new(big.Int).Set(v)}
	default:
		if n, ok := asUint64(v); ok {
			return decodeResult{id: new(big.Int).SetUint64(n)}
		}
		return decodeResult{err: fmt.Errorf("%s has type %T", first, v)}
	}
}
