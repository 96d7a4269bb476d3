package domain

// Envelope is the output of one AEAD encryption: ciphertext without the tag, the
// nonce used and the detached authentication tag.
type Envelope struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	Tag        []byte `json:"tag,omitempty"`
}

// Validate checks IV and tag sizes. A missing tag is accepted when the ciphertext
// still carries it at the end.
func (e *Envelope) Validate() error {
	if e == nil || len(e.IV) != NonceSize {
		return ErrInvalidEnvelope
	}
	if len(e.Tag) != 0 && len(e.Tag) != TagSize {
		return ErrInvalidEnvelope
	}
	if len(e.Tag) == 0 && len(e.Ciphertext) < TagSize {
		return ErrInvalidEnvelope
	}
	return nil
}
