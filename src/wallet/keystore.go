package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// KeystoreProvider signs with an encrypted geth keystore account.
type KeystoreProvider struct {
	ks         *keystore.KeyStore
	account    accounts.Account
	passphrase string
	approver   Approver
}

// NewKeystoreProvider opens dir and selects account, or the first account when account is empty.
func NewKeystoreProvider(dir, account, passphrase string, approver Approver) (*KeystoreProvider, error) {
	if approver == nil {
		approver = AutoApprove{}
	}
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)

	var acct accounts.Account
	if account != "" {
		if !common.IsHexAddress(account) {
			return nil, fmt.Errorf("wallet account %q is not a hex address", account)
		}
		found, err := ks.Find(accounts.Account{Address: common.HexToAddress(account)})
		if err != nil {
			return nil, fmt.Errorf("wallet account %s: %w", account, err)
		}
		acct = found
	} else {
		all := ks.Accounts()
		if len(all) == 0 {
			return nil, fmt.Errorf("%w: keystore %s holds no accounts", ErrWalletUnavailable, dir)
		}
		acct = all[0]
	}

	return &KeystoreProvider{ks: ks, account: acct, passphrase: passphrase, approver: approver}, nil
}

func (p *KeystoreProvider) Name() string { return "keystore" }

func (p *KeystoreProvider) RequestAccount(ctx context.Context) (common.Address, error) {
	if err := p.approver.ApproveAccount(ctx, p.account.Address); err != nil {
		return common.Address{}, err
	}
	return p.account.Address, nil
}

func (p *KeystoreProvider) SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if account != p.account.Address {
		return nil, fmt.Errorf("account %s is not managed by this wallet", account.Hex())
	}
	if err := p.approver.ApproveTransaction(ctx, account, tx); err != nil {
		return nil, err
	}
	return p.ks.SignTxWithPassphrase(p.account, p.passphrase, tx, chainID)
}
