package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/kbirk/wamp/pkg/messages"
	"golang.org/x/crypto/pbkdf2"
)

// Salted key derivation defaults used when the challenge omits them.
const (
	DefaultCRAIterations = 1000
	DefaultCRAKeyLength  = 32
)

// WAMPCRA signs the router's challenge string with a shared secret.
type WAMPCRA struct {
	authID string
	secret string
	extra  map[string]any
}

func NewWAMPCRA(authID string, secret string, extra map[string]any) *WAMPCRA {
	return &WAMPCRA{authID: authID, secret: secret, extra: copyExtra(extra)}
}

func (a *WAMPCRA) AuthMethod() string        { return MethodWAMPCRA }
func (a *WAMPCRA) AuthID() string            { return a.authID }
func (a *WAMPCRA) AuthExtra() map[string]any { return a.extra }

func (a *WAMPCRA) Authenticate(challenge *messages.Challenge) (*messages.Authenticate, error) {
	if err := checkMethod(a, challenge); err != nil {
		return nil, err
	}

	text, err := stringExtra(challenge.Extra, "challenge")
	if err != nil {
		return nil, err
	}

	key := []byte(a.secret)
	if _, salted := challenge.Extra["salt"]; salted {
		salt, err := stringExtra(challenge.Extra, "salt")
		if err != nil {
			return nil, err
		}
		iterations, err := intExtra(challenge.Extra, "iterations", DefaultCRAIterations)
		if err != nil {
			return nil, err
		}
		keyLen, err := intExtra(challenge.Extra, "keylen", DefaultCRAKeyLength)
		if err != nil {
			return nil, err
		}
		key = DeriveCRAKey(a.secret, salt, iterations, keyLen)
	}

	return &messages.Authenticate{Signature: SignCRA(key, text)}, nil
}

// DeriveCRAKey derives the signing key for a salted secret. The result is the
// base64 encoding of the PBKDF2-SHA256 output, which is itself used as key.
func DeriveCRAKey(secret string, salt string, iterations int, keyLen int) []byte {
	if iterations <= 0 {
		iterations = DefaultCRAIterations
	}
	if keyLen <= 0 {
		keyLen = DefaultCRAKeyLength
	}
	derived := pbkdf2.Key([]byte(secret), []byte(salt), iterations, keyLen, sha256.New)
	return []byte(base64.StdEncoding.EncodeToString(derived))
}

// SignCRA returns base64(HMAC-SHA256(key, challenge)).
func SignCRA(key []byte, challenge string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(challenge))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
