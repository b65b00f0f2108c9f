package models

// Envelope types understood by the receive pipeline.
const (
	EnvelopeTypeCiphertext   = "ciphertext"
	EnvelopeTypeSessionReset = "session_reset"
)

// Envelope is the protocol-level wrapper around one inbound encrypted message.
type Envelope struct {
	Type              string   `json:"type"`
	Source            *Address `json:"source,omitempty"`
	SourceDevice      uint32   `json:"source_device"`
	Timestamp         int64    `json:"timestamp"`
	ServerTimestamp   int64    `json:"server_timestamp"`
	ProtocolVersion   int      `json:"protocol_version"`
	GroupID           []byte   `json:"group_id,omitempty"`
	SenderIdentityKey []byte   `json:"sender_identity_key,omitempty"`
	IV                []byte   `json:"iv,omitempty"`
	Ciphertext        []byte   `json:"ciphertext,omitempty"`
	Signature         []byte   `json:"signature,omitempty"`
}

// HasSource reports whether the envelope names a usable sender.
func (e *Envelope) HasSource() bool {
	return e != nil && e.Source != nil && e.Source.IsValid()
}
