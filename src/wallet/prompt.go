package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PromptApprover asks on a terminal before exposing the account or signing.
type PromptApprover struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func NewPromptApprover(in io.Reader, out io.Writer) *PromptApprover {
	return &PromptApprover{in: bufio.NewReader(in), out: out}
}

func (p *PromptApprover) ApproveAccount(ctx context.Context, account common.Address) error {
	return p.ask(ctx, fmt.Sprintf("Connect account %s? [y/N]: ", account.Hex()))
}

func (p *PromptApprover) ApproveTransaction(ctx context.Context, account common.Address, tx *types.Transaction) error {
	to := "contract creation"
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	return p.ask(ctx, fmt.Sprintf("Sign transaction from %s to %s (gas %d, nonce %d)? [y/N]: ",
		account.Hex(), to, tx.Gas(), tx.Nonce()))
}

func (p *PromptApprover) ask(ctx context.Context, question string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return ErrUserRejected
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	default:
		return ErrUserRejected
	}
}
