package receiver

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"chatstore/crypto"
	"chatstore/models"
)

// ProtocolVersion is the envelope version this build can decrypt.
const ProtocolVersion = 1

// MaxEnvelopeSize bounds raw envelope input (10 MB).
const MaxEnvelopeSize = 10 * 1024 * 1024

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrCorruptEnvelope indicates raw input that could not be parsed into an envelope.
var ErrCorruptEnvelope = errors.New("receiver: corrupt envelope")

// ParseEnvelope decodes one raw envelope. Any structural problem wraps ErrCorruptEnvelope.
func ParseEnvelope(raw []byte) (*models.Envelope, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrCorruptEnvelope)
	}
	if len(raw) > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit", ErrCorruptEnvelope, len(raw))
	}

	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEnvelope, err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, fmt.Errorf("%w: missing type", ErrCorruptEnvelope)
	}
	if env.Source != nil {
		normalized := models.NewAddress(env.Source.ServiceID, env.Source.PhoneNumber)
		env.Source = &normalized
	}

	return &env, nil
}

// SealEnvelope encrypts plaintext for a recipient sharing sessionKey and signs the result
// with the sender's identity key. It is the sending-side counterpart of Processor.
func SealEnvelope(identityKey ed25519.PrivateKey, sessionKey []byte, source models.Address, timestamp int64, plaintext, groupID []byte) (*models.Envelope, error) {
	if !source.IsValid() {
		return nil, errors.New("source address is required")
	}

	iv, ciphertext, err := crypto.Seal(sessionKey, plaintext, associatedData(source))
	if err != nil {
		return nil, err
	}

	env := &models.Envelope{
		Type:              models.EnvelopeTypeCiphertext,
		Source:            &source,
		SourceDevice:      1,
		Timestamp:         timestamp,
		ProtocolVersion:   ProtocolVersion,
		GroupID:           groupID,
		SenderIdentityKey: append([]byte(nil), identityKey.Public().(ed25519.PublicKey)...),
		IV:                iv,
		Ciphertext:        ciphertext,
	}
	env.Signature, err = crypto.Sign(identityKey, signedParts(env)...)
	if err != nil {
		return nil, err
	}
	return env, nil
}

// MarshalEnvelope encodes env for transport.
func MarshalEnvelope(env *models.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func associatedData(source models.Address) []byte {
	return []byte(source.Key())
}

func signedParts(env *models.Envelope) [][]byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(env.Timestamp))
	source := ""
	if env.Source != nil {
		source = env.Source.Key()
	}
	return [][]byte{
		ts[:],
		[]byte(source),
		env.SenderIdentityKey,
		env.IV,
		env.Ciphertext,
		env.GroupID,
	}
}
