package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/postoracle/src/config"
	"github.com/stake-plus/postoracle/src/ledger/schema"
	"github.com/stake-plus/postoracle/src/wallet"
)

type postTuple struct {
	Id              *big.Int
	Author          common.Address
	Username        string
	Status          uint8
	SimilarityScore *big.Int
	IpfsCID         string
	Timestamp       *big.Int
}

type fakeCaller struct {
	out  []byte
	err  error
	msgs []ethereum.CallMsg
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.msgs = append(f.msgs, msg)
	return f.out, f.err
}

func packPost(t *testing.T, p postTuple) []byte {
	t.Helper()
	out, err := schema.Default().ABI.Methods[schema.GetPostMethod].Outputs.Pack(p)
	require.NoError(t, err)
	return out
}

func TestGetPostApproved(t *testing.T) {
	caller := &fakeCaller{out: packPost(t, postTuple{
		Id:              big.NewInt(3),
		Author:          testAuthor,
		Username:        "alice",
		Status:          uint8(StatusApproved),
		SimilarityScore: big.NewInt(12),
		IpfsCID:         "bafybeigdyr",
		Timestamp:       big.NewInt(1700000000),
	})}
	c := NewReadClient(caller, testContract, nil)

	p, err := c.GetPost(context.Background(), big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, p.Status)
	assert.True(t, p.Status.IsTerminal())
	assert.True(t, p.HasScore())
	assert.Equal(t, uint64(12), p.SimilarityScore)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, testAuthor, p.Author)
	assert.Equal(t, int64(1700000000), p.SubmittedAt.Unix())
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/bafybeigdyr", p.GatewayURL(config.DefaultIPFSGateway))

	require.Len(t, caller.msgs, 1)
	assert.Equal(t, testContract, *caller.msgs[0].To)
}

func TestGetPostPendingDefaults(t *testing.T) {
	caller := &fakeCaller{out: packPost(t, postTuple{
		Id: big.NewInt(4), Author: testAuthor, Username: "bob",
		SimilarityScore: big.NewInt(0), Timestamp: big.NewInt(0),
	})}
	p, err := NewReadClient(caller, testContract, nil).GetPost(context.Background(), big.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.False(t, p.HasScore())
	assert.Empty(t, p.GatewayURL(config.DefaultIPFSGateway))
	assert.True(t, p.SubmittedAt.IsZero())
}

func TestGetPostUnknownStatus(t *testing.T) {
	caller := &fakeCaller{out: packPost(t, postTuple{
		Id: big.NewInt(4), Author: testAuthor, Username: "bob", Status: 9,
		SimilarityScore: big.NewInt(0), Timestamp: big.NewInt(0),
	})}
	_, err := NewReadClient(caller, testContract, nil).GetPost(context.Background(), big.NewInt(4))
	assert.ErrorContains(t, err, "unknown status 9")
}

func TestGetPostNotFound(t *testing.T) {
	caller := &fakeCaller{out: packPost(t, postTuple{
		Id: big.NewInt(0), SimilarityScore: big.NewInt(0), Timestamp: big.NewInt(0),
	})}
	_, err := NewReadClient(caller, testContract, nil).GetPost(context.Background(), big.NewInt(77))
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestGetPostNetworkError(t *testing.T) {
	caller := &fakeCaller{err: errors.New("dial tcp: connection refused")}
	_, err := NewReadClient(caller, testContract, nil).GetPost(context.Background(), big.NewInt(1))
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "getPost", nerr.Op)
}

func TestOpenReadClientNeedsEndpoint(t *testing.T) {
	_, err := OpenReadClient(context.Background(), config.Config{})
	var cerr *config.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.ElementsMatch(t, []string{"RPC_URL", "CONTRACT_ADDRESS"}, cerr.Missing)
}

func TestOpenWriteClientNeedsWallet(t *testing.T) {
	_, err := OpenWriteClient(context.Background(), config.Config{RPCURL: "http://x", ContractAddress: testContract.Hex()}, nil, nil)
	assert.ErrorIs(t, err, wallet.ErrWalletUnavailable)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "Failed", StatusFailed.String())
	assert.Equal(t, "Status(7)", Status(7).String())
	assert.False(t, Status(7).Valid())
	assert.False(t, StatusPending.IsTerminal())

	s, err := ParseStatus("approved")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s)
	_, err = ParseStatus("done")
	assert.Error(t, err)

	text, err := StatusRejected.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Rejected", string(text))
}

func TestGatewayURLWithoutBase(t *testing.T) {
	p := Post{IPFSCID: "bafy", SubmittedAt: time.Time{}}
	assert.Equal(t, "ipfs://bafy", p.GatewayURL(""))
	assert.Equal(t, "https://ipfs.io/ipfs/bafy", p.GatewayURL("https://ipfs.io/ipfs"))
}
