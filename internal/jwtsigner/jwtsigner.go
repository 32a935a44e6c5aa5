package jwtsigner

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs and verifies service tokens with one static key.
type Signer interface {
	Algorithm() string
	KeyID() string
	Sign(claims jwt.Claims) (string, error)
	// VerifyKey is a jwt.Keyfunc returning the key that checks signatures.
	VerifyKey(t *jwt.Token) (any, error)
	// PublicJWK renders the verification key as a JWK. Symmetric signers
	// return false: their key is the secret and is never published.
	PublicJWK() (map[string]any, bool)
}

// New picks a signer for alg ("EdDSA" or "HS256").
func New(alg, hmacSecret, ed25519PrivB64, kid string) (Signer, error) {
	switch strings.ToUpper(alg) {
	case "EDDSA":
		return NewEd25519FromBase64(ed25519PrivB64, kid)
	case "HS256":
		return NewHMAC(hmacSecret, kid)
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
	}
}

// Ed25519Signer holds an Ed25519 keypair.
type Ed25519Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	kid     string
}

// NewEd25519FromBase64 creates a signer from base64-encoded ed25519 private key
// bytes. An empty privB64 generates an ephemeral key, which invalidates every
// token on restart; use it for local development only.
func NewEd25519FromBase64(privB64, kid string) (*Ed25519Signer, error) {
	var priv ed25519.PrivateKey
	if privB64 == "" {
		_, p, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		priv = p
	} else {
		raw, err := base64.StdEncoding.DecodeString(privB64)
		if err != nil {
			return nil, err
		}
		switch len(raw) {
		case ed25519.PrivateKeySize:
			priv = ed25519.PrivateKey(raw)
		case ed25519.SeedSize:
			priv = ed25519.NewKeyFromSeed(raw)
		default:
			return nil, errors.New("invalid ed25519 private key size")
		}
	}
	return &Ed25519Signer{private: priv, public: priv.Public().(ed25519.PublicKey), kid: kid}, nil
}

// GenerateEd25519Base64 returns a fresh private key in the format
// NewEd25519FromBase64 accepts.
func GenerateEd25519Base64() (string, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(priv), nil
}

func (s *Ed25519Signer) Algorithm() string { return jwt.SigningMethodEdDSA.Alg() }
func (s *Ed25519Signer) KeyID() string     { return s.kid }

func (s *Ed25519Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.private)
}

func (s *Ed25519Signer) VerifyKey(*jwt.Token) (any, error) { return s.public, nil }

func (s *Ed25519Signer) PublicJWK() (map[string]any, bool) {
	return map[string]any{
		"kty": "OKP",
		"crv": "Ed25519",
		"alg": "EdDSA",
		"use": "sig",
		"kid": s.kid,
		"x":   base64.RawURLEncoding.EncodeToString(s.public),
	}, true
}

// HMACSigner signs with a shared HS256 secret.
type HMACSigner struct {
	secret []byte
	kid    string
}

func NewHMAC(secret, kid string) (*HMACSigner, error) {
	if secret == "" {
		return nil, errors.New("empty hmac secret")
	}
	return &HMACSigner{secret: []byte(secret), kid: kid}, nil
}

func (h *HMACSigner) Algorithm() string { return jwt.SigningMethodHS256.Alg() }
func (h *HMACSigner) KeyID() string     { return h.kid }

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = h.kid
	return t.SignedString(h.secret)
}

func (h *HMACSigner) VerifyKey(*jwt.Token) (any, error) { return h.secret, nil }

func (h *HMACSigner) PublicJWK() (map[string]any, bool) { return nil, false }
