package proxy

import (
	"bytes"
	"encoding/json"
)

// Envelope is the wrapper around every API response.
type Envelope struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	Description string              `json:"description,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters carries hints that help to handle some errors.
type ResponseParameters struct {
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int   `json:"retry_after,omitempty"`
}

// rawEnvelope detects a missing "ok" key.
type rawEnvelope struct {
	OK          *bool               `json:"ok"`
	Result      json.RawMessage     `json:"result"`
	Description string              `json:"description"`
	ErrorCode   int                 `json:"error_code"`
	Parameters  *ResponseParameters `json:"parameters"`
}

// DecodeEnvelope parses a response body. The "ok" key is mandatory.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Msg: "invalid envelope", Err: err}
	}
	if raw.OK == nil {
		return nil, decodeErrorf("ok", "missing required field")
	}
	env := &Envelope{
		OK:          *raw.OK,
		Description: raw.Description,
		ErrorCode:   raw.ErrorCode,
		Parameters:  raw.Parameters,
	}
	if len(raw.Result) > 0 && !bytes.Equal(raw.Result, []byte("null")) {
		env.Result = raw.Result
	}
	return env, nil
}
