package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/stake-plus/postoracle/src/logging"
	"github.com/stake-plus/postoracle/src/wallet"
)

// gas estimate headroom, in percent
const gasHeadroom = 20

// Submit sends submitPost(username) once and blocks until the transaction is mined.
// Nothing here is retried; the caller decides whether to run the pipeline again.
// Once the transaction is broadcast, cancelling ctx no longer stops the wait for its
// receipt; only the confirmation timeout does.
func (c *WriteClient) Submit(ctx context.Context, username string) (*Receipt, error) {
	input, err := c.schema.PackSubmit(username)
	if err != nil {
		return nil, fmt.Errorf("pack submitPost: %w", err)
	}

	msg := ethereum.CallMsg{From: c.account, To: &c.contract, Data: input}
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		if isRevert(err) {
			return nil, &RevertedError{Reason: revertReason(err)}
		}
		return nil, &NetworkError{Op: "estimate gas", Err: err}
	}
	gas += gas * gasHeadroom / 100

	nonce, err := c.backend.PendingNonceAt(ctx, c.account)
	if err != nil {
		return nil, &NetworkError{Op: "nonce", Err: err}
	}

	tx, err := c.buildTx(ctx, nonce, gas, input)
	if err != nil {
		return nil, err
	}

	signed, err := c.provider.SignTx(ctx, c.account, tx, c.chainID)
	if err != nil {
		if errors.Is(err, wallet.ErrUserRejected) {
			return nil, fmt.Errorf("%w: %w", ErrTransactionRejected, err)
		}
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, &NetworkError{Op: "send transaction", Err: err}
	}
	c.logger.Printf("submitPost sent: tx=%s nonce=%d gas=%d from=%s", signed.Hash().Hex(), nonce, gas, c.account.Hex())

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.confirmTimeout)
	defer cancel()
	mined, err := c.waitMined(waitCtx, signed.Hash())
	if err != nil {
		return nil, &NetworkError{Op: "confirm " + signed.Hash().Hex(), Err: err}
	}

	receipt := receiptFrom(mined, c.account)
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, &RevertedError{TxHash: receipt.TxHash, Reason: "execution failed"}
	}
	c.logger.Printf("submitPost mined: tx=%s block=%s logs=%d", receipt.TxHash.Hex(), receipt.BlockNumber, len(receipt.Logs))
	return receipt, nil
}

func (c *WriteClient) buildTx(ctx context.Context, nonce, gas uint64, input []byte) (*types.Transaction, error) {
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, &NetworkError{Op: "latest header", Err: err}
	}
	to := c.contract

	if head.BaseFee == nil {
		price, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, &NetworkError{Op: "gas price", Err: err}
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Data:     input,
		}), nil
	}

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, &NetworkError{Op: "gas tip", Err: err}
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      input,
	}), nil
}

// waitMined polls for the receipt until it exists or ctx ends. One confirmation is final.
func (c *WriteClient) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			c.logger.Printf("receipt %s not available yet: %s", hash.Hex(), logging.Describe(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func revertReason(err error) string {
	var de rpc.DataError
	if errors.As(err, &de) {
		if hexData, ok := de.ErrorData().(string); ok {
			if reason, uerr := abi.UnpackRevert(common.FromHex(hexData)); uerr == nil {
				return reason
			}
		}
	}
	return err.Error()
}
