package auth

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/kbirk/wamp/pkg/messages"
)

// Cryptosign signs the router's challenge with an Ed25519 key.
type Cryptosign struct {
	authID string
	key    ed25519.PrivateKey
	extra  map[string]any
}

// NewCryptosign builds an authenticator from a hex encoded private key, either
// the 32 byte seed or the 64 byte expanded key.
func NewCryptosign(authID string, privateKeyHex string, extra map[string]any) (*Cryptosign, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}

	extra = copyExtra(extra)
	if extra == nil {
		extra = make(map[string]any)
	}
	extra["pubkey"] = hex.EncodeToString(key.Public().(ed25519.PublicKey))

	return &Cryptosign{authID: authID, key: key, extra: extra}, nil
}

func (a *Cryptosign) AuthMethod() string        { return MethodCryptosign }
func (a *Cryptosign) AuthID() string            { return a.authID }
func (a *Cryptosign) AuthExtra() map[string]any { return a.extra }

// PublicKey returns the hex encoded public key sent as authextra.pubkey.
func (a *Cryptosign) PublicKey() string {
	return a.extra["pubkey"].(string)
}

func (a *Cryptosign) Authenticate(challenge *messages.Challenge) (*messages.Authenticate, error) {
	if err := checkMethod(a, challenge); err != nil {
		return nil, err
	}

	text, err := stringExtra(challenge.Extra, "challenge")
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: challenge is not hex: %v", ErrInvalidChallenge, err)
	}

	sig := ed25519.Sign(a.key, raw)
	return &messages.Authenticate{Signature: hex.EncodeToString(sig) + text}, nil
}

// VerifyCryptosign checks a signature produced by Cryptosign against the hex
// encoded public key and challenge.
func VerifyCryptosign(publicKeyHex string, challengeHex string, signatureHex string) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	challenge, err := hex.DecodeString(challengeHex)
	if err != nil {
		return false
	}
	signed, err := hex.DecodeString(signatureHex)
	if err != nil || len(signed) < ed25519.SignatureSize {
		return false
	}
	if !bytes.Equal(signed[ed25519.SignatureSize:], challenge) {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), challenge, signed[:ed25519.SignatureSize])
}
