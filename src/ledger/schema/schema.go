// Package schema holds the contract interface the ledger client and decoder consume.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	SubmitMethod   = "submitPost"
	GetPostMethod  = "getPost"
	SubmittedEvent = "PostSubmitted"
)

//go:embed PostManager.abi.json
var defaultABI []byte

// Schema is a parsed contract ABI that is known to carry the calls and event the pipeline needs.
type Schema struct {
	ABI abi.ABI
}

// Default returns the embedded post manager schema.
func Default() *Schema {
	s, err := Load(defaultABI)
	if err != nil {
		panic(fmt.Sprintf("schema: embedded ABI invalid: %v", err))
	}
	return s
}

// LoadFile reads an ABI from disk. Both a bare ABI array and a compiler artifact are accepted.
func LoadFile(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi %s: %w", path, err)
	}
	return Load(raw)
}

// Load parses raw as either `[...]` or `{"abi": [...]}`.
func Load(raw []byte) (*Schema, error) {
	body, err := abiBody(raw)
	if err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	s := &Schema{ABI: parsed}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func abiBody(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("invalid ABI JSON: empty document")
	}
	switch trimmed[0] {
	case '[':
		return trimmed, nil
	case '{':
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(trimmed, &artifact); err != nil {
			return nil, fmt.Errorf("invalid ABI JSON: %w", err)
		}
		body := bytes.TrimSpace(artifact.ABI)
		if len(body) == 0 || body[0] != '[' {
			return nil, errors.New("invalid ABI JSON: expected an ABI array or an object with { abi }")
		}
		return body, nil
	default:
		return nil, errors.New("invalid ABI JSON: expected an ABI array or an object with { abi }")
	}
}

func (s *Schema) validate() error {
	for _, name := range []string{SubmitMethod, GetPostMethod} {
		if _, ok := s.ABI.Methods[name]; !ok {
			return fmt.Errorf("abi has no %s method", name)
		}
	}
	ev, ok := s.ABI.Events[SubmittedEvent]
	if !ok {
		return fmt.Errorf("abi has no %s event", SubmittedEvent)
	}
	if len(ev.Inputs) == 0 {
		return fmt.Errorf("%s event has no inputs", SubmittedEvent)
	}
	return nil
}

// Submitted returns the post-created event description.
func (s *Schema) Submitted() abi.Event {
	return s.ABI.Events[SubmittedEvent]
}

// PackSubmit encodes submitPost(username).
func (s *Schema) PackSubmit(username string) ([]byte, error) {
	return s.ABI.Pack(SubmitMethod, username)
}

// PackGetPost encodes getPost(id).
func (s *Schema) PackGetPost(id interface{}) ([]byte, error) {
	return s.ABI.Pack(GetPostMethod, id)
}

// UnpackFields decodes a call result into a name -> value map. A single tuple output is
// flattened into its components so callers see the same keys either way.
func (s *Schema) UnpackFields(method string, out []byte) (map[string]interface{}, error) {
	m, ok := s.ABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("abi has no %s method", method)
	}
	values, err := m.Outputs.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}

	fields := make(map[string]interface{}, len(values))
	if len(m.Outputs) == 1 && m.Outputs[0].Type.T == abi.TupleTy && len(values) == 1 {
		rv := reflect.ValueOf(values[0])
		if rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct {
			return nil, fmt.Errorf("unpack %s: tuple decoded as %s", method, rv.Kind())
		}
		for i, name := range m.Outputs[0].Type.TupleRawNames {
			if i < rv.NumField() {
				fields[name] = rv.Field(i).Interface()
			}
		}
		return fields, nil
	}

	for i, arg := range m.Outputs {
		if i < len(values) {
			fields[arg.Name] = values[i]
		}
	}
	return fields, nil
}
