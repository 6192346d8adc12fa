package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyProvider signs with an in-memory secp256k1 key.
type KeyProvider struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	approver Approver
}

func NewKeyProvider(hexKey string, approver Approver) (*KeyProvider, error) {
	if approver == nil {
		approver = AutoApprove{}
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet private key: %w", err)
	}
	return &KeyProvider{key: key, address: crypto.PubkeyToAddress(key.PublicKey), approver: approver}, nil
}

func (p *KeyProvider) Name() string { return "private-key" }

// Address is the key's account, available without asking the approver.
func (p *KeyProvider) Address() common.Address { return p.address }

func (p *KeyProvider) RequestAccount(ctx context.Context) (common.Address, error) {
	if err := p.approver.ApproveAccount(ctx, p.address); err != nil {
		return common.Address{}, err
	}
	return p.address, nil
}

func (p *KeyProvider) SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if account != p.address {
		return nil, fmt.Errorf("account %s is not managed by this wallet", account.Hex())
	}
	if err := p.approver.ApproveTransaction(ctx, account, tx); err != nil {
		return nil, err
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
}
