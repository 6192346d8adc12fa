// Package wallet is the boundary to whatever holds the signing key. The pipeline never
// looks for keys itself; it asks Detect for a Provider and treats absence as an error.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stake-plus/postoracle/src/config"
)

var (
	ErrWalletUnavailable = errors.New("wallet not found: set WALLET_PRIVATE_KEY or WALLET_KEYSTORE_DIR")
	ErrUserRejected      = errors.New("user rejected the request")
)

// Provider authorizes an account and signs transactions for it.
type Provider interface {
	Name() string
	RequestAccount(ctx context.Context) (common.Address, error)
	SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Approver stands in for the wallet's permission prompt.
// Implementations return ErrUserRejected when the user declines.
type Approver interface {
	ApproveAccount(ctx context.Context, account common.Address) error
	ApproveTransaction(ctx context.Context, account common.Address, tx *types.Transaction) error
}

// AutoApprove approves everything. Used by the API server, whose operator configured the key.
type AutoApprove struct{}

func (AutoApprove) ApproveAccount(context.Context, common.Address) error { return nil }

func (AutoApprove) ApproveTransaction(context.Context, common.Address, *types.Transaction) error {
	return nil
}

// Detect returns the configured provider: keystore first, then a raw key.
// It returns ErrWalletUnavailable when neither is configured. A nil approver approves everything.
func Detect(cfg config.Wallet, approver Approver) (Provider, error) {
	switch {
	case cfg.KeystoreDir != "":
		return NewKeystoreProvider(cfg.KeystoreDir, cfg.Account, cfg.Passphrase, approver)
	case cfg.PrivateKey != "":
		return NewKeyProvider(cfg.PrivateKey, approver)
	default:
		return nil, ErrWalletUnavailable
	}
}
