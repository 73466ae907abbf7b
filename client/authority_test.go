package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/centrid/go-identity-server/client"
	"github.com/centrid/go-identity-server/token"
)

func TestHTTPAuthorityWireContract(t *testing.T) {
	keyPair, err := token.GenerateKeyPair(2048)
	require.NoError(t, err)
	encodedKey, err := keyPair.PublicKeyBase64()
	require.NoError(t, err)

	var invalidated string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /session/public-key", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(encodedKey))
	})
	mux.HandleFunc("POST /session/verify", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "acme", r.Header.Get(client.TenantHeader))
		if r.FormValue("token") == "live-token" {
			_, _ = w.Write([]byte("true"))
			return
		}
		_, _ = w.Write([]byte("false"))
	})
	mux.HandleFunc("POST /session/logout", func(w http.ResponseWriter, r *http.Request) {
		invalidated = r.FormValue("token")
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	authority := client.NewHTTPAuthority(srv.URL)
	ctx := context.Background()

	key, err := authority.PublicKey(ctx)
	require.NoError(t, err)
	require.Equal(t, keyPair.PublicKey.N, key.N)

	live, err := authority.VerifySession(ctx, "acme", "live-token")
	require.NoError(t, err)
	require.True(t, live)

	live, err = authority.VerifySession(ctx, "acme", "dead-token")
	require.NoError(t, err)
	require.False(t, live)

	require.NoError(t, authority.InvalidateSession(ctx, "acme", "live-token"))
	require.Equal(t, "live-token", invalidated)
}

func TestHTTPAuthorityPropagatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	authority := client.NewHTTPAuthority(srv.URL)
	ctx := context.Background()

	_, err := authority.PublicKey(ctx)
	require.Error(t, err)

	_, err = authority.VerifySession(ctx, "acme", "token")
	require.Error(t, err)
}
