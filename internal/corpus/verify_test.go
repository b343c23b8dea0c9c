package corpus

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testKey struct {
	pub  string
	sign func(msg []byte) string
}

// newTestKey builds a legacy (non-prehashed) Minisign key pair.
func newTestKey(t *testing.T) testKey {
	t.Helper()
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	keyID := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	pubBin := append([]byte("Ed"), keyID...)
	pubBin = append(pubBin, pk...)
	pub := "untrusted comment: minisign public key 0807060504030201\n" + base64.StdEncoding.EncodeToString(pubBin) + "\n"

	sign := func(msg []byte) string {
		sig := ed25519.Sign(sk, msg)
		sigBin := append([]byte("Ed"), keyID...)
		sigBin = append(sigBin, sig...)
		trusted := "trusted comment: timestamp:1730000000\tfile:latest.json"
		global := ed25519.Sign(sk, append(append([]byte{}, sig...), []byte(trusted)[17:]...))
		return "untrusted comment: signature from minisign secret key\n" +
			base64.StdEncoding.EncodeToString(sigBin) + "\n" +
			trusted + "\n" +
			base64.StdEncoding.EncodeToString(global) + "\n"
	}
	return testKey{pub: pub, sign: sign}
}

func writeSignedCorpus(t *testing.T, key testKey, body []byte) (string, string) {
	t.Helper()
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "latest.json")
	sigPath := corpusPath + ".minisig"
	require.NoError(t, os.WriteFile(corpusPath, body, 0o600))
	require.NoError(t, os.WriteFile(sigPath, []byte(key.sign(body)), 0o600))
	return corpusPath, sigPath
}

func TestVerifierAcceptsSignedCorpus(t *testing.T) {
	key := newTestKey(t)
	corpusPath, sigPath := writeSignedCorpus(t, key, []byte(`["cidA","cidB"]`))

	v, err := NewVerifier(key.pub)
	require.NoError(t, err)

	c, err := LoadVerified(context.Background(), corpusPath, sigPath, v)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
}

func TestVerifierRejectsTamperedCorpus(t *testing.T) {
	key := newTestKey(t)
	corpusPath, sigPath := writeSignedCorpus(t, key, []byte(`["cidA","cidB"]`))
	require.NoError(t, os.WriteFile(corpusPath, []byte(`["cidA","cidEvil"]`), 0o600))

	v, err := NewVerifier(key.pub)
	require.NoError(t, err)

	_, err = LoadVerified(context.Background(), corpusPath, sigPath, v)
	require.Error(t, err)
	require.Contains(t, err.Error(), corpusPath)
}

func TestNewVerifierRequiresKey(t *testing.T) {
	_, err := NewVerifier("   ")
	require.Error(t, err)

	_, err = NewVerifier("untrusted comment: nope\nnot-base64!")
	require.Error(t, err)
}

func TestVerifierMissingSignature(t *testing.T) {
	key := newTestKey(t)
	v, err := NewVerifier(key.pub)
	require.NoError(t, err)

	dir := t.TempDir()
	err = v.VerifyBytes([]byte(`["cidA"]`), filepath.Join(dir, "latest.json.minisig"))
	require.Error(t, err)

	err = v.VerifyBytes([]byte(`["cidA"]`), "")
	require.Error(t, err)
}

func TestVerifierKeyID(t *testing.T) {
	key := newTestKey(t)
	v, err := NewVerifier(key.pub)
	require.NoError(t, err)
	require.Equal(t, "0807060504030201", v.KeyID())

	path := filepath.Join(t.TempDir(), "key.pub")
	require.NoError(t, os.WriteFile(path, []byte(key.pub), 0o600))
	fromFile, err := NewVerifierFromFile(path)
	require.NoError(t, err)
	require.Equal(t, v.KeyID(), fromFile.KeyID())
}

func TestVerifierRejectsOtherKey(t *testing.T) {
	signer := newTestKey(t)
	corpusPath, sigPath := writeSignedCorpus(t, signer, []byte(`["cidA"]`))

	other := newTestKey(t)
	v, err := NewVerifier(other.pub)
	require.NoError(t, err)

	// Both test keys share an ID, so the mismatch surfaces as a bad signature.
	_, err = LoadVerified(context.Background(), corpusPath, sigPath, v)
	require.Error(t, err)
}

func TestLoadVerifiedParsesTheBytesItVerified(t *testing.T) {
	key := newTestKey(t)
	signed := []byte(`["cidA","cidB"]`)
	corpusPath, sigPath := writeSignedCorpus(t, key, signed)

	v, err := NewVerifier(key.pub)
	require.NoError(t, err)

	// The file changes after every read; a second read would see other content.
	reads := 0
	readFile = func(name string) ([]byte, error) {
		reads++
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		return data, os.WriteFile(name, []byte(`["cidEvil"]`), 0o600)
	}
	t.Cleanup(func() { readFile = os.ReadFile })

	c, err := LoadVerified(context.Background(), corpusPath, sigPath, v)
	require.NoError(t, err)
	require.Equal(t, 1, reads)
	require.Equal(t, []string{"cidA", "cidB"}, c.Items())
}

func TestLoadVerifiedWithoutVerifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.json")
	require.NoError(t, os.WriteFile(path, []byte(`["cidA","cidA"]`), 0o600))

	c, err := LoadVerified(context.Background(), path, "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"cidA"}, c.Items())
}
