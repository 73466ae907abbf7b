package token

import (
	"crypto/rsa"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	apperrors "github.com/centrid/go-identity-server/internal/errors"
)

// Token type markers carried in the JWT "typ" header. A verifier must reject
// a token whose type does not match the class it expects, even when the
// signature is valid, so an access token can never be replayed as a session.
const (
	TypeSession     = "JWT"
	TypeAccessToken = "access_token"
)

// Codec signs and verifies compact JSON claim tokens with an RSA key pair.
type Codec struct {
	keyPair *KeyPair
}

// NewCodec creates a codec around the given key pair.
func NewCodec(keyPair *KeyPair) *Codec {
	return &Codec{keyPair: keyPair}
}

// PublicKey returns the verification half of the codec's key pair.
func (c *Codec) PublicKey() *rsa.PublicKey {
	return c.keyPair.PublicKey
}

// Sign produces a compact RS256 token carrying claims, marked with the given
// type in the header.
func (c *Codec) Sign(claims jwtlib.MapClaims, typ string) (string, error) {
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	tok.Header["typ"] = typ

	signed, err := tok.SignedString(c.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// Verify parses raw, checks its signature and expiry against the codec's
// public key, and requires the header type to match typ. It returns the
// decoded claims, or one of ErrInvalidSignature, ErrTokenExpired,
// ErrClaimMismatch.
func (c *Codec) Verify(raw, typ string) (jwtlib.MapClaims, error) {
	return Verify(raw, typ, c.keyPair.PublicKey)
}

// Verify is the key-explicit variant of Codec.Verify, used by relying
// parties that hold only the distributed public key.
func Verify(raw, typ string, key *rsa.PublicKey) (jwtlib.MapClaims, error) {
	parsed, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodRSA); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwtlib.ErrTokenExpired):
			return nil, apperrors.ErrTokenExpired
		case errors.Is(err, jwtlib.ErrTokenSignatureInvalid):
			return nil, apperrors.ErrInvalidSignature
		default:
			return nil, errors.Wrap(apperrors.ErrInvalidToken, err.Error())
		}
	}
	if !parsed.Valid {
		return nil, apperrors.ErrInvalidSignature
	}

	if headerType(parsed) != typ {
		return nil, errors.Wrap(apperrors.ErrClaimMismatch, "unexpected token type")
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}

// DecodeUnsafe extracts the claims and header type of raw without any
// cryptographic check. It is only used to read routing claims, such as the
// tenant, before a verification key can be selected.
func DecodeUnsafe(raw string) (jwtlib.MapClaims, string, error) {
	parsed, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, "", errors.Wrap(apperrors.ErrInvalidToken, err.Error())
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, "", apperrors.ErrInvalidToken
	}
	return claims, headerType(parsed), nil
}

func headerType(t *jwtlib.Token) string {
	typ, _ := t.Header["typ"].(string)
	return typ
}
