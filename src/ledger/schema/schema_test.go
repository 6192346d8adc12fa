package schema

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCarriesPipelineShapes(t *testing.T) {
	s := Default()

	ev := s.Submitted()
	require.Len(t, ev.Inputs, 3)
	assert.Equal(t, "postId", ev.Inputs[0].Name)
	assert.Equal(t, "author", ev.Inputs[1].Name)
	assert.Equal(t, "username", ev.Inputs[2].Name)

	_, ok := s.ABI.Methods[GetPostMethod]
	assert.True(t, ok)
}

func TestLoadAcceptsArtifactObject(t *testing.T) {
	artifact, err := json.Marshal(map[string]json.RawMessage{
		"contractName": json.RawMessage(`"AdvancedPostManager"`),
		"abi":          defaultABI,
	})
	require.NoError(t, err)

	s, err := Load(artifact)
	require.NoError(t, err)
	assert.Equal(t, Default().Submitted().ID, s.Submitted().ID)
}

func TestLoadRejectsOtherShapes(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":       "",
		"string":      `"abi"`,
		"object":      `{"bytecode":"0x00"}`,
		"abi not arr": `{"abi":{"x":1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadRequiresSubmittedEvent(t *testing.T) {
	raw := `[
	  {"type":"function","name":"submitPost","inputs":[{"name":"u","type":"string"}],"outputs":[]},
	  {"type":"function","name":"getPost","inputs":[{"name":"id","type":"uint256"}],"outputs":[]}
	]`
	_, err := Load([]byte(raw))
	assert.ErrorContains(t, err, "PostSubmitted")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abi.json")
	require.NoError(t, os.WriteFile(path, defaultABI, 0o600))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestUnpackFieldsFlattensTuple(t *testing.T) {
	s := Default()
	author := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	type post struct {
		Id              *big.Int
		Author          common.Address
		Username        string
		Status          uint8
		SimilarityScore *big.Int
		IpfsCID         string
		Timestamp       *big.Int
	}
	out, err := s.ABI.Methods[GetPostMethod].Outputs.Pack(post{
		Id:              big.NewInt(9),
		Author:          author,
		Username:        "alice",
		Status:          2,
		SimilarityScore: big.NewInt(87),
		IpfsCID:         "bafy",
		Timestamp:       big.NewInt(1700000000),
	})
	require.NoError(t, err)

	fields, err := s.UnpackFields(GetPostMethod, out)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), fields["status"])
	assert.Equal(t, "bafy", fields["ipfsCID"])
	assert.Equal(t, author, fields["author"])
	assert.Equal(t, 0, big.NewInt(87).Cmp(fields["similarityScore"].(*big.Int)))
}

func TestUnpackFieldsFlatOutputs(t *testing.T) {
	raw := `[
	  {"type":"function","name":"submitPost","inputs":[{"name":"u","type":"string"}],"outputs":[]},
	  {"type":"function","name":"getPost","inputs":[{"name":"id","type":"uint256"}],
	   "outputs":[{"name":"status","type":"uint8"},{"name":"ipfsCID","type":"string"}]},
	  {"type":"event","name":"PostSubmitted","inputs":[{"name":"postId","type":"uint256","indexed":true}]}
	]`
	s, err := Load([]byte(raw))
	require.NoError(t, err)

	args := abi.Arguments(s.ABI.Methods[GetPostMethod].Outputs)
	out, err := args.Pack(uint8(1), "")
	require.NoError(t, err)

	fields, err := s.UnpackFields(GetPostMethod, out)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), fields["status"])
	assert.Equal(t, "", fields["ipfsCID"])
	_, hasScore := fields["similarityScore"]
	assert.False(t, hasScore)
}
