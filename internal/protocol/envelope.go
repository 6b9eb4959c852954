package protocol

import (
	"encoding/json"
	"fmt"
)

// Wire envelope for the hub<->validator channel. Payloads are a closed set of
// message kinds; anything else decodes to a Message with only Type set and is
// the caller's to log and ignore.
const (
	TypeSignup   = "signup"
	TypeValidate = "validate"
)

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SignupRequest is sent by a freshly connected validator.
type SignupRequest struct {
	IP            string `json:"ip"`
	PublicKey     string `json:"publicKey"`
	SignedMessage []byte `json:"signedMessage"`
	CallbackID    string `json:"callbackId"`
}

// SignupReply assigns the validator its persisted identity.
type SignupReply struct {
	ValidatorID int64  `json:"validatorId"`
	CallbackID  string `json:"callbackId"`
}

// ValidateRequest asks a validator to probe a target once.
type ValidateRequest struct {
	URL        string `json:"url"`
	CallbackID string `json:"callbackId"`
	TargetID   int64  `json:"targetId"`
}

// ValidateReply carries the signed probe result back to the hub.
type ValidateReply struct {
	CallbackID    string `json:"callbackId"`
	Status        string `json:"status"`
	Latency       int64  `json:"latency"`
	TargetID      int64  `json:"targetId"`
	ValidatorID   int64  `json:"validatorId"`
	SignedMessage []byte `json:"signedMessage"`
}

// Message is the decoded union. Exactly one of the pointers is non-nil for a
// known Type; all are nil for an unknown one.
type Message struct {
	Type          string
	Signup        *SignupRequest
	SignupReply   *SignupReply
	Validate      *ValidateRequest
	ValidateReply *ValidateReply
}

// Decode parses an envelope coming from a peer (hub side): signup requests
// and validate replies.
func Decode(raw []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	m := &Message{Type: env.Type}
	switch env.Type {
	case TypeSignup:
		var s SignupRequest
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("decode signup: %w", err)
		}
		m.Signup = &s
	case TypeValidate:
		var r ValidateReply
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, fmt.Errorf("decode validate reply: %w", err)
		}
		m.ValidateReply = &r
	}
	return m, nil
}

// DecodeFromHub parses an envelope coming from the hub (validator side):
// signup replies and validate requests.
func DecodeFromHub(raw []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	m := &Message{Type: env.Type}
	switch env.Type {
	case TypeSignup:
		var s SignupReply
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("decode signup reply: %w", err)
		}
		m.SignupReply = &s
	case TypeValidate:
		var r ValidateRequest
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, fmt.Errorf("decode validate request: %w", err)
		}
		m.Validate = &r
	}
	return m, nil
}

// Encode wraps a payload into an envelope frame.
func Encode(typ string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Data: data})
}
