package corpus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	minisign "github.com/jedisct1/go-minisign"
)

// Verifier checks corpus bytes against a detached minisign signature.
type Verifier struct {
	key minisign.PublicKey
}

// NewVerifier parses a public key in minisign's two-line text form.
func NewVerifier(pubKey string) (*Verifier, error) {
	pubKey = strings.TrimSpace(pubKey)
	if pubKey == "" {
		return nil, errors.New("corpus public key is required")
	}
	key, err := minisign.DecodePublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("parse corpus public key: %w", err)
	}
	return &Verifier{key: key}, nil
}

// NewVerifierFromFile reads the public key from path.
func NewVerifierFromFile(path string) (*Verifier, error) {
	key, err := minisign.NewPublicKeyFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load corpus public key %q: %w", path, err)
	}
	return &Verifier{key: key}, nil
}

// KeyID renders the key identifier the way minisign prints it.
func (v *Verifier) KeyID() string {
	return keyID(v.key.KeyId)
}

func keyID(id [8]byte) string {
	return fmt.Sprintf("%016X", binary.LittleEndian.Uint64(id[:]))
}

// VerifyBytes checks data against the signature stored at signaturePath.
// Callers parse the same slice they verified.
func (v *Verifier) VerifyBytes(data []byte, signaturePath string) error {
	if v == nil {
		return errors.New("signature verifier not configured")
	}
	if strings.TrimSpace(signaturePath) == "" {
		return errors.New("corpus signature path is required")
	}
	sig, err := minisign.NewSignatureFromFile(signaturePath)
	if err != nil {
		return fmt.Errorf("load signature %q: %w", signaturePath, err)
	}
	if sig.KeyId != v.key.KeyId {
		return fmt.Errorf("signature %q was made by key %s, expected %s", signaturePath, keyID(sig.KeyId), v.KeyID())
	}
	ok, err := v.key.Verify(data, sig)
	if err != nil {
		return fmt.Errorf("signature %q: %w", signaturePath, err)
	}
	if !ok {
		return fmt.Errorf("signature %q does not match", signaturePath)
	}
	return nil
}

// LoadVerified reads path once, checks those bytes when v is set and parses
// them. A nil verifier loads without a check.
func LoadVerified(ctx context.Context, path, signaturePath string, v *Verifier) (*Corpus, error) {
	data, err := read(ctx, path)
	if err != nil {
		return nil, err
	}
	if v != nil {
		if err := v.VerifyBytes(data, signaturePath); err != nil {
			return nil, fmt.Errorf("verify corpus %q: %w", path, err)
		}
	}
	return decode(path, data)
}
