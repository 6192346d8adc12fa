package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/postoracle/src/ledger/schema"
)

var (
	testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testAuthor   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func submittedLog(t *testing.T, id int64, username string) types.Log {
	t.Helper()
	ev := schema.Default().Submitted()
	data, err := ev.Inputs.NonIndexed().Pack(username)
	require.NoError(t, err)
	return types.Log{
		Address: testContract,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(big.NewInt(id)),
			common.BytesToHash(testAuthor.Bytes()),
		},
		Data: data,
	}
}

func statusUpdatedLog(t *testing.T, id int64) types.Log {
	t.Helper()
	ev := schema.Default().ABI.Events["PostStatusUpdated"]
	data, err := ev.Inputs.NonIndexed().Pack(uint8(2), big.NewInt(91), "bafy")
	require.NoError(t, err)
	return types.Log{
		Address: testContract,
		Topics:  []common.Hash{ev.ID, common.BigToHash(big.NewInt(id))},
		Data:    data,
	}
}

// looksLikeSubmitted carries the right topic0 but no data, so it cannot decode.
func looksLikeSubmitted() types.Log {
	ev := schema.Default().Submitted()
	return types.Log{
		Address: testContract,
		Topics:  []common.Hash{ev.ID, common.BigToHash(big.NewInt(1)), common.BytesToHash(testAuthor.Bytes())},
	}
}
