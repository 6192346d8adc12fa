package ledger

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stake-plus/postoracle/src/config"
	"github.com/stake-plus/postoracle/src/ledger/schema"
	"github.com/stake-plus/postoracle/src/logging"
	"github.com/stake-plus/postoracle/src/wallet"
)

// CallBackend is the read-only slice of an RPC client. *ethclient.Client satisfies it.
type CallBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TxBackend is what the submitter needs from an RPC client. *ethclient.Client satisfies it.
type TxBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// LoadSchema returns the operator ABI when CONTRACT_ABI_PATH is set, else the embedded one.
func LoadSchema(cfg config.Config) (*schema.Schema, error) {
	if cfg.ABIPath == "" {
		return schema.Default(), nil
	}
	return schema.LoadFile(cfg.ABIPath)
}

func endpointConfig(cfg config.Config) error {
	cerr := &config.ConfigurationError{}
	if cfg.RPCURL == "" {
		cerr.Missing = append(cerr.Missing, "RPC_URL")
	}
	if cfg.ContractAddress == "" {
		cerr.Missing = append(cerr.Missing, "CONTRACT_ADDRESS")
	} else if !common.IsHexAddress(cfg.ContractAddress) {
		cerr.Invalid = map[string]string{"CONTRACT_ADDRESS": "not a hex address"}
	}
	if len(cerr.Missing) > 0 || len(cerr.Invalid) > 0 {
		return cerr
	}
	return nil
}

// ReadClient queries post state. It needs no account.
type ReadClient struct {
	backend  CallBackend
	contract common.Address
	schema   *schema.Schema
	close    func()
}

func NewReadClient(backend CallBackend, contract common.Address, s *schema.Schema) *ReadClient {
	if s == nil {
		s = schema.Default()
	}
	return &ReadClient{backend: backend, contract: contract, schema: s, close: func() {}}
}

// OpenReadClient dials the configured RPC endpoint.
func OpenReadClient(ctx context.Context, cfg config.Config) (*ReadClient, error) {
	if err := endpointConfig(cfg); err != nil {
		return nil, err
	}
	s, err := LoadSchema(cfg)
	if err != nil {
		return nil, err
	}
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, &NetworkError{Op: "dial", Err: err}
	}
	c := NewReadClient(ec, cfg.Contract(), s)
	c.close = ec.Close
	return c, nil
}

func (c *ReadClient) Close() { c.close() }

// GetPost calls getPost(id). Fields the ABI does not carry default to zero values.
func (c *ReadClient) GetPost(ctx context.Context, id *big.Int) (Post, error) {
	input, err := c.schema.PackGetPost(id)
	if err != nil {
		return Post{}, fmt.Errorf("pack getPost: %w", err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: input}, nil)
	if err != nil {
		return Post{}, &NetworkError{Op: "getPost", Err: err}
	}
	fields, err := c.schema.UnpackFields(schema.GetPostMethod, out)
	if err != nil {
		return Post{}, err
	}
	return postFromFields(id, fields)
}

func postFromFields(id *big.Int, fields map[string]interface{}) (Post, error) {
	p := Post{ID: new(big.Int).Set(id)}

	if v, ok := fields["id"].(*big.Int); ok && v.Sign() > 0 {
		p.ID = new(big.Int).Set(v)
	}
	if v, ok := fields["author"].(common.Address); ok {
		p.Author = v
	}
	if v, ok := fields["username"].(string); ok {
		p.Username = v
	}
	if v, ok := fields["ipfsCID"].(string); ok {
		p.IPFSCID = v
	}
	if v, ok := asUint64(fields["similarityScore"]); ok {
		p.SimilarityScore = v
	}
	if v, ok := asUint64(fields["timestamp"]); ok && v > 0 {
		p.SubmittedAt = time.Unix(int64(v), 0).UTC()
	}

	raw, _ := asUint64(fields["status"])
	p.Status = Status(raw)
	if raw > uint64(StatusFailed) {
		return Post{}, fmt.Errorf("post %s: unknown status %d", id, raw)
	}

	_, hasAuthor := fields["author"]
	if hasAuthor && p.Author == (common.Address{}) && p.Username == "" {
		return Post{}, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}
	return p, nil
}

func asUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil || !n.IsUint64() {
			return 0, false
		}
		return n.Uint64(), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	default:
		return 0, false
	}
}

// WriteOptions tunes a WriteClient. Zero values fall back to config defaults.
type WriteOptions struct {
	Contract       common.Address
	Schema         *schema.Schema
	ChainID        *big.Int
	ReceiptPoll    time.Duration
	ConfirmTimeout time.Duration
	Logger         *log.Logger
}

// WriteClient submits transactions from one authorized account.
type WriteClient struct {
	backend        TxBackend
	provider       wallet.Provider
	account        common.Address
	contract       common.Address
	schema         *schema.Schema
	chainID        *big.Int
	receiptPoll    time.Duration
	confirmTimeout time.Duration
	logger         *log.Logger
	close          func()
}

// NewWriteClient asks provider for an account. A nil provider yields wallet.ErrWalletUnavailable.
func NewWriteClient(ctx context.Context, backend TxBackend, provider wallet.Provider, opts WriteOptions) (*WriteClient, error) {
	if provider == nil {
		return nil, wallet.ErrWalletUnavailable
	}
	account, err := provider.RequestAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("request account from %s wallet: %w", provider.Name(), err)
	}

	chainID := opts.ChainID
	if chainID == nil || chainID.Sign() == 0 {
		chainID, err = backend.ChainID(ctx)
		if err != nil {
			return nil, &NetworkError{Op: "chain id", Err: err}
		}
	}
	if opts.Schema == nil {
		opts.Schema = schema.Default()
	}
	if opts.ReceiptPoll <= 0 {
		opts.ReceiptPoll = config.DefaultReceiptPoll
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = config.DefaultConfirmTimeout
	}

	return &WriteClient{
		backend:        backend,
		provider:       provider,
		account:        account,
		contract:       opts.Contract,
		schema:         opts.Schema,
		chainID:        chainID,
		receiptPoll:    opts.ReceiptPoll,
		confirmTimeout: opts.ConfirmTimeout,
		logger:         logging.OrDiscard(opts.Logger),
		close:          func() {},
	}, nil
}

// OpenWriteClient dials the RPC endpoint and binds the client to provider's account.
func OpenWriteClient(ctx context.Context, cfg config.Config, provider wallet.Provider, logger *log.Logger) (*WriteClient, error) {
	if provider == nil {
		return nil, wallet.ErrWalletUnavailable
	}
	if err := endpointConfig(cfg); err != nil {
		return nil, err
	}
	s, err := LoadSchema(cfg)
	if err != nil {
		return nil, err
	}
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, &NetworkError{Op: "dial", Err: err}
	}

	var chainID *big.Int
	if cfg.ChainID > 0 {
		chainID = big.NewInt(cfg.ChainID)
	}
	c, err := NewWriteClient(ctx, ec, provider, WriteOptions{
		Contract:       cfg.Contract(),
		Schema:         s,
		ChainID:        chainID,
		ReceiptPoll:    cfg.ReceiptPoll,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Logger:         logger,
	})
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.close = ec.Close
	return c, nil
}

func (c *WriteClient) Account() common.Address { return c.account }

func (c *WriteClient) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *WriteClient) Schema() *schema.Schema { return c.schema }

func (c *WriteClient) Contract() common.Address { return c.contract }

func (c *WriteClient) Close() { c.close() }
