// Package signaling decodes inbound relay messages and forwards the
// peer-to-peer handshake kinds to their addressed identity.
package signaling

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/dkeye/Share/internal/core"
	"github.com/dkeye/Share/internal/domain"
)

type Kind string

const (
	KindUpdateInfo   Kind = "update_info"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
	KindOnlineUsers  Kind = "online_users"
)

var (
	ErrMalformed      = errors.New("malformed message")
	ErrNotSignal      = errors.New("not a signaling kind")
	ErrMissingTarget  = errors.New("missing target")
	ErrMissingPayload = errors.New("missing payload")
)

// PayloadField names the field that carries the opaque payload of a
// signaling kind. ok is false for every other kind.
func (k Kind) PayloadField() (field string, ok bool) {
	switch k {
	case KindOffer:
		return "offer", true
	case KindAnswer:
		return "answer", true
	case KindICECandidate:
		return "candidate", true
	}
	return "", false
}

func (k Kind) IsSignal() bool {
	_, ok := k.PayloadField()
	return ok
}

// DecodeKind reads only the "type" field.
func DecodeKind(f core.Frame) (Kind, error) {
	var env struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(f, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.Type, nil
}

func DecodeUpdateInfo(f core.Frame) (domain.PresenceUpdate, error) {
	var u domain.PresenceUpdate
	if err := json.Unmarshal(f, &u); err != nil {
		return domain.PresenceUpdate{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return u, nil
}

// Signal is one offer, answer or ice-candidate. Payload is kept verbatim.
type Signal struct {
	Kind    Kind
	Target  domain.Identity
	Payload json.RawMessage
}

func DecodeSignal(f core.Frame) (Signal, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(f, &fields); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var kind Kind
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &kind); err != nil {
			return Signal{}, fmt.Errorf("%w: type: %v", ErrMalformed, err)
		}
	}
	field, ok := kind.PayloadField()
	if !ok {
		return Signal{}, ErrNotSignal
	}
	var target string
	if raw, ok := fields["target"]; ok {
		if err := json.Unmarshal(raw, &target); err != nil {
			return Signal{}, fmt.Errorf("%w: target: %v", ErrMalformed, err)
		}
	}
	if target == "" {
		return Signal{}, ErrMissingTarget
	}
	payload, ok := fields[field]
	if !ok {
		return Signal{}, ErrMissingPayload
	}
	return Signal{Kind: kind, Target: domain.Identity(target), Payload: payload}, nil
}

// EncodeSignal builds the outbound form {type, sender, <payload field>}.
// Any sender the client supplied is not carried over.
func EncodeSignal(sender domain.Identity, s Signal) (core.Frame, error) {
	field, ok := s.Kind.PayloadField()
	if !ok {
		return nil, ErrNotSignal
	}
	out := map[string]any{
		"type":   s.Kind,
		"sender": sender,
		field:    s.Payload,
	}
	return json.Marshal(out)
}

type rosterMessage struct {
	Type  Kind               `json:"type"`
	Users []core.PresenceDTO `json:"users"`
}

func EncodeRoster(snap []domain.Presence) (core.Frame, error) {
	return json.Marshal(rosterMessage{Type: KindOnlineUsers, Users: core.RosterDTO(snap)})
}
