package fsm

import (
	"encoding/json"

	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope is the signed outer wrapper that carries one message into the state machine.
// The sequence is a strictly increasing per sender counter that doubles as a replay guard
type Envelope struct {
	Type      string       // route name of the enclosed message
	Msg       lib.HexBytes // binary encoded message body
	PublicKey lib.HexBytes // signer public key
	Signature lib.HexBytes // signature over the sign bytes
	Sequence  uint64
}

// NewEnvelope() wraps a message into an unsigned envelope
func NewEnvelope(msg MessageI, sequence uint64) (*Envelope, lib.ErrorI) {
	bz, err := msg.MarshalBinary()
	if err != nil {
		return nil, lib.ErrMarshal(err)
	}
	return &Envelope{Type: msg.Name(), Msg: bz, Sequence: sequence}, nil
}

// Check() performs stateless sanity validation of the envelope fields
func (x *Envelope) Check() lib.ErrorI {
	if x.Type == "" {
		return ErrInvalidEnvelope("empty message type")
	}
	if len(x.PublicKey) != crypto.Ed25519PubKeySize {
		return ErrInvalidEnvelope("invalid public key size")
	}
	if len(x.Signature) != crypto.Ed25519SignatureSize {
		return lib.ErrInvalidSignatureSize()
	}
	if x.Sequence == 0 {
		return ErrInvalidSequence()
	}
	return nil
}

// Message() decodes and sanity checks the enclosed message
func (x *Envelope) Message() (MessageI, lib.ErrorI) {
	msg, err := EmptyMessageForName(x.Type)
	if err != nil {
		return nil, err
	}
	if er := msg.UnmarshalBinary(x.Msg); er != nil {
		return nil, lib.ErrUnmarshal(er)
	}
	if err = msg.Check(); err != nil {
		return nil, err
	}
	return msg, nil
}

// GetSignBytes() returns the canonical bytes the signature covers, the envelope
// serialized with the signature field left empty
func (x *Envelope) GetSignBytes() ([]byte, lib.ErrorI) {
	bz, err := (&Envelope{
		Type:      x.Type,
		Msg:       x.Msg,
		PublicKey: x.PublicKey,
		Sequence:  x.Sequence,
	}).MarshalBinary()
	if err != nil {
		return nil, lib.ErrMarshal(err)
	}
	return bz, nil
}

// Sign() stamps the signer's public key on the envelope and signs it
func (x *Envelope) Sign(key crypto.PrivateKeyI) lib.ErrorI {
	x.PublicKey = key.PublicKey().Bytes()
	signBytes, err := x.GetSignBytes()
	if err != nil {
		return err
	}
	x.Signature = key.Sign(signBytes)
	return nil
}

// CheckEnvelopeResult bundles the outputs of envelope validation for execution
type CheckEnvelopeResult struct {
	envelope *Envelope
	msg      MessageI
	sender   crypto.AddressI
	hash     string
}

func (r *CheckEnvelopeResult) Envelope() *Envelope     { return r.envelope }
func (r *CheckEnvelopeResult) Msg() MessageI           { return r.msg }
func (r *CheckEnvelopeResult) Sender() crypto.AddressI { return r.sender }
func (r *CheckEnvelopeResult) Hash() string            { return r.hash }

// CheckEnvelope() decodes and fully validates an envelope against the current state:
// well formed wrapper, well formed message, authentic signature and a fresh sequence
func (s *StateMachine) CheckEnvelope(envelopeBytes []byte) (*CheckEnvelopeResult, lib.ErrorI) {
	envelope := new(Envelope)
	if er := envelope.UnmarshalBinary(envelopeBytes); er != nil {
		return nil, lib.ErrUnmarshal(er)
	}
	if err := envelope.Check(); err != nil {
		return nil, err
	}
	msg, err := envelope.Message()
	if err != nil {
		return nil, err
	}
	publicKey, er := crypto.NewPublicKeyFromBytes(envelope.PublicKey)
	if er != nil {
		return nil, lib.ErrPubKeyFromBytes(er)
	}
	signBytes, err := envelope.GetSignBytes()
	if err != nil {
		return nil, err
	}
	if !publicKey.VerifyBytes(signBytes, envelope.Signature) {
		return nil, lib.ErrInvalidSignature()
	}
	sender := publicKey.Address()
	// a stale sequence is rejected before execution; SetAccountSequence re-checks
	// inside the same overlay that applies the message
	last, err := s.GetAccountSequence(sender.Bytes())
	if err != nil {
		return nil, err
	}
	if envelope.Sequence <= last {
		return nil, ErrInvalidSequence()
	}
	return &CheckEnvelopeResult{
		envelope: envelope,
		msg:      msg,
		sender:   sender,
		hash:     crypto.HashString(envelopeBytes),
	}, nil
}

// MarshalBinary() encodes the envelope in proto wire format
func (x *Envelope) MarshalBinary() ([]byte, error) {
	var b []byte
	if x.Type != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, x.Type)
	}
	if len(x.Msg) != 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, x.Msg)
	}
	if len(x.PublicKey) != 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, x.PublicKey)
	}
	if len(x.Signature) != 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, x.Signature)
	}
	if x.Sequence != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, x.Sequence)
	}
	return b, nil
}

// UnmarshalBinary() decodes the envelope from proto wire format
func (x *Envelope) UnmarshalBinary(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.Type, data = v, data[m:]
		case num == 2 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.Msg, data = append(lib.HexBytes(nil), v...), data[m:]
		case num == 3 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.PublicKey, data = append(lib.HexBytes(nil), v...), data[m:]
		case num == 4 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.Signature, data = append(lib.HexBytes(nil), v...), data[m:]
		case num == 5 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			x.Sequence, data = v, data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			data = data[m:]
		}
	}
	return nil
}

// envelopeJSON represents the JSON structure for Envelope, carrying the message
// in its decoded JSON form rather than raw bytes
type envelopeJSON struct {
	Type      string          `json:"type"`
	Msg       json.RawMessage `json:"msg"`
	PublicKey lib.HexBytes    `json:"publicKey,omitempty"`
	Signature lib.HexBytes    `json:"signature,omitempty"`
	Sequence  uint64          `json:"sequence"`
}

// MarshalJSON() implements the json.Marshaler interface for Envelope
func (x Envelope) MarshalJSON() ([]byte, error) {
	msg, err := x.Message()
	if err != nil {
		return nil, err
	}
	msgJSON, er := json.Marshal(msg)
	if er != nil {
		return nil, er
	}
	return json.Marshal(envelopeJSON{
		Type:      x.Type,
		Msg:       msgJSON,
		PublicKey: x.PublicKey,
		Signature: x.Signature,
		Sequence:  x.Sequence,
	})
}

// UnmarshalJSON() implements the json.Unmarshaler interface for Envelope
func (x *Envelope) UnmarshalJSON(data []byte) (err error) {
	j := new(envelopeJSON)
	if err = json.Unmarshal(data, j); err != nil {
		return
	}
	msg, e := EmptyMessageForName(j.Type)
	if e != nil {
		return e
	}
	if err = json.Unmarshal(j.Msg, msg); err != nil {
		return
	}
	bz, err := msg.MarshalBinary()
	if err != nil {
		return
	}
	*x = Envelope{
		Type:      j.Type,
		Msg:       bz,
		PublicKey: j.PublicKey,
		Signature: j.Signature,
		Sequence:  j.Sequence,
	}
	return
}
