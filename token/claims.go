package token

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims builds a jwt.MapClaims through typed setters, so callers can attach
// extension claims to a session without reflection-based type switching on
// arbitrary values.
type Claims struct {
	values jwtlib.MapClaims
}

// NewClaims returns an empty claims builder.
func NewClaims() *Claims {
	return &Claims{values: jwtlib.MapClaims{}}
}

func (c *Claims) SetString(name, value string) *Claims {
	c.values[name] = value
	return c
}

func (c *Claims) SetBool(name string, value bool) *Claims {
	c.values[name] = value
	return c
}

func (c *Claims) SetInt64(name string, value int64) *Claims {
	c.values[name] = value
	return c
}

func (c *Claims) SetFloat64(name string, value float64) *Claims {
	c.values[name] = value
	return c
}

// SetTime stores the value as unix seconds, matching the registered date
// claims of the JWT wire format.
func (c *Claims) SetTime(name string, value time.Time) *Claims {
	c.values[name] = value.Unix()
	return c
}

// Map returns the underlying claim set. The builder must not be reused after
// handing its map to a signer.
func (c *Claims) Map() jwtlib.MapClaims {
	return c.values
}

// MergeInto copies the built claims into dst without overwriting claims dst
// already carries. Reserved claims stay under the issuer's control.
func (c *Claims) MergeInto(dst jwtlib.MapClaims) {
	for name, value := range c.values {
		if _, reserved := dst[name]; !reserved {
			dst[name] = value
		}
	}
}
