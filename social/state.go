package social

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// StateManager seals the OAuth state parameter on the way out and verifies
// it on the way back.
type StateManager interface {
	Encode(state *OAuthState) (string, error)
	Decode(token string) (*OAuthState, error)
}

// OAuthState rides through the provider round trip inside the state
// parameter. Carrying the PKCE verifier here keeps the callback stateless.
type OAuthState struct {
	Nonce        string `json:"n"`
	Provider     string `json:"p"`
	CodeVerifier string `json:"cv,omitempty"`
	RedirectURL  string `json:"r,omitempty"`
	IssuedAt     int64  `json:"iat"`
	ExpiresAt    int64  `json:"exp"`
}

// EncryptedStateManager seals state payloads with AES-GCM and authenticates
// the ciphertext with HMAC-SHA256. Wire form: base64url(mac || ciphertext).
type EncryptedStateManager struct {
	encryptionKey []byte
	hmacKey       []byte
	ttl           time.Duration
}

func NewEncryptedStateManager(encryptionKey, hmacKey []byte, ttl time.Duration) *EncryptedStateManager {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &EncryptedStateManager{
		encryptionKey: encryptionKey,
		hmacKey:       hmacKey,
		ttl:           ttl,
	}
}

// Encode stamps the validity window and nonce, seals the payload, and signs
// the result.
func (sm *EncryptedStateManager) Encode(state *OAuthState) (string, error) {
	if state == nil {
		return "", ErrInvalidState
	}

	now := time.Now()
	if state.IssuedAt == 0 {
		state.IssuedAt = now.Unix()
	}
	if state.ExpiresAt == 0 {
		state.ExpiresAt = now.Add(sm.ttl).Unix()
	}
	if state.Nonce == "" {
		state.Nonce = generateNonce()
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to serialize oauth state")
	}

	sealed, err := sm.seal(payload)
	if err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(append(sm.sign(sealed), sealed...)), nil
}

// Decode authenticates, opens, and expiry-checks a state token. Tampered or
// undecodable input collapses into ErrInvalidState so callers cannot tell a
// forged token apart from a corrupted one.
func (sm *EncryptedStateManager) Decode(token string) (*OAuthState, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil || len(raw) < sha256.Size {
		return nil, ErrInvalidState
	}

	mac, sealed := raw[:sha256.Size], raw[sha256.Size:]
	if !hmac.Equal(mac, sm.sign(sealed)) {
		return nil, ErrInvalidState
	}

	payload, err := sm.open(sealed)
	if err != nil {
		return nil, ErrInvalidState
	}

	state := &OAuthState{}
	if err := json.Unmarshal(payload, state); err != nil {
		return nil, ErrInvalidState
	}

	if time.Now().Unix() > state.ExpiresAt {
		return nil, ErrStateExpired
	}

	return state, nil
}

func (sm *EncryptedStateManager) seal(payload []byte) ([]byte, error) {
	gcm, err := sm.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate state nonce")
	}

	return gcm.Seal(nonce, nonce, payload, nil), nil
}

func (sm *EncryptedStateManager) open(sealed []byte) ([]byte, error) {
	gcm, err := sm.aead()
	if err != nil {
		return nil, err
	}

	size := gcm.NonceSize()
	if len(sealed) < size {
		return nil, ErrInvalidState
	}

	return gcm.Open(nil, sealed[:size], sealed[size:], nil)
}

func (sm *EncryptedStateManager) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(sm.encryptionKey)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize state cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize state cipher")
	}

	return gcm, nil
}

func (sm *EncryptedStateManager) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, sm.hmacKey)
	mac.Write(data)
	return mac.Sum(nil)
}

func generateNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}

func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func computeCodeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
