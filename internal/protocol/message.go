// internal/protocol/message.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrMalformed is returned by Receive for input that does not decode as a Request. The channel
	// stays usable.
	ErrMalformed = errors.New("malformed request")
	// ErrClosed is returned by channels after Close.
	ErrClosed = errors.New("channel closed")
	// ErrDuplicateHandler is returned when a second handler is registered for a type.
	ErrDuplicateHandler = errors.New("handler already registered")
	// ErrUnknownType is the error answered for types without a handler.
	ErrUnknownType = errors.New("unknown message type")
)

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

// Type names a request kind.
type Type string

const (
	TypeEngineExecute Type = "ENGINE_EXECUTE"
	TypeEngineScan    Type = "ENGINE_SCAN"
	TypeExecuteAction Type = "EXECUTE_ACTION"
	TypeExecuteBatch  Type = "EXECUTE_BATCH"
	TypeQueryState    Type = "QUERY_STATE"
	TypeLoadFormData  Type = "LOAD_MCP_FORM_DATA"
	TypeSaveFormData  Type = "SAVE_MCP_FORM_DATA"
	TypeListProfiles  Type = "LIST_MCP_PROFILES"
)

// Request is one inbound message.
type Request struct {
	ID      string          `json:"id"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers the request with the same ID.
type Response struct {
	ID      string          `json:"id"`
	Type    Type            `json:"type"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewRequest builds a request with a fresh ID and payload encoded as JSON.
func NewRequest(t Type, payload interface{}) (Request, error) {
	req := Request{ID: uuid.NewString(), Type: t}
	if payload != nil {
		raw, err := wire.Marshal(payload)
		if err != nil {
			return Request{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
		}
		req.Payload = raw
	}
	return req, nil
}

// DecodePayload decodes a request payload into v. An absent payload leaves v untouched.
func DecodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := wire.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Decode parses one encoded request.
func Decode(raw []byte) (Request, error) {
	var req Request
	if err := wire.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.Type == "" {
		return req, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return req, nil
}

func failure(req Request, err error) Response {
	return Response{ID: req.ID, Type: req.Type, OK: false, Error: err.Error()}
}
