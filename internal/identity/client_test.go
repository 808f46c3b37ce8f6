package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"provisioner/internal/platform/config"
	"provisioner/internal/sentinel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthServer stands in for the identity service: a token endpoint plus
// the user lookup endpoint.
type fakeAuthServer struct {
	*httptest.Server
	tokenRequests atomic.Int64
	tokenStatus   int
	userStatus    int
	userBody      string
}

func newFakeAuthServer() *fakeAuthServer {
	f := &fakeAuthServer{
		tokenStatus: http.StatusOK,
		userStatus:  http.StatusOK,
		userBody:    `{"uuid":"abc-123","email":"A@Ex.com","roles":["ADMIN_ROLE"],"enabled":true}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		f.tokenRequests.Add(1)
		_ = r.ParseForm()
		if r.FormValue("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(f.tokenStatus)
		if f.tokenStatus == http.StatusOK {
			_, _ = w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))
		}
	})
	mux.HandleFunc("/api/users/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(f.userStatus)
		if f.userStatus == http.StatusOK {
			_, _ = w.Write([]byte(f.userBody))
		}
	})

	f.Server = httptest.NewServer(mux)
	return f
}

func (f *fakeAuthServer) clientConfig() config.AuthServer {
	return config.AuthServer{
		APIBaseURL:           f.URL + "/api",
		TokenEndpoint:        f.URL + "/oauth2/token",
		ClientID:             "demo-service-client",
		ClientSecret:         "demo-service-secret",
		Scopes:               "internal.read",
		UserEndpointTemplate: "/users/%s",
		TokenTimeout:         5 * time.Second,
		FetchTimeout:         5 * time.Second,
	}
}

func newClient(t *testing.T, cfg config.AuthServer, opts ...Option) *Client {
	t.Helper()
	client, err := New(cfg, opts...)
	require.NoError(t, err)
	return client
}

func TestNewRejectsInvalidUserEndpointTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{"missing placeholder", "/users/"},
		{"wrong verb", "/users/%d"},
		{"extra placeholder", "/users/%s/%s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeAuthServer()
			defer srv.Close()
			cfg := srv.clientConfig()
			cfg.UserEndpointTemplate = tt.template

			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestResolveSuccess(t *testing.T) {
	srv := newFakeAuthServer()
	defer srv.Close()

	client := newClient(t, srv.clientConfig())
	profile, err := client.Resolve(context.Background(), "abc-123")

	require.NoError(t, err)
	assert.Equal(t, "abc-123", profile.ExternalID)
	assert.Equal(t, "A@Ex.com", profile.Email)
	assert.Equal(t, RoleList{"ADMIN_ROLE"}, profile.Roles)
	assert.True(t, profile.Enabled)
	// name absent in payload, defaults to the external id
	assert.Equal(t, "abc-123", profile.Name)
}

func TestResolveNotFound(t *testing.T) {
	srv := newFakeAuthServer()
	defer srv.Close()
	srv.userStatus = http.StatusNotFound

	client := newClient(t, srv.clientConfig())
	profile, err := client.Resolve(context.Background(), "xyz-999")

	assert.Nil(t, profile)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestResolveUpstreamFailures(t *testing.T) {
	t.Run("non-2xx response", func(t *testing.T) {
		srv := newFakeAuthServer()
		defer srv.Close()
		srv.userStatus = http.StatusInternalServerError

		client := newClient(t, srv.clientConfig())
		_, err := client.Resolve(context.Background(), "abc-123")
		assert.ErrorIs(t, err, sentinel.ErrUpstream)
	})

	t.Run("undecodable body", func(t *testing.T) {
		srv := newFakeAuthServer()
		defer srv.Close()
		srv.userBody = `not json`

		client := newClient(t, srv.clientConfig())
		_, err := client.Resolve(context.Background(), "abc-123")
		assert.ErrorIs(t, err, sentinel.ErrUpstream)
	})

	t.Run("unreachable server", func(t *testing.T) {
		srv := newFakeAuthServer()
		cfg := srv.clientConfig()
		srv.Close()

		// token endpoint is down too, so the failure surfaces as an auth error
		client := newClient(t, cfg)
		_, err := client.Resolve(context.Background(), "abc-123")
		assert.ErrorIs(t, err, sentinel.ErrAuth)
	})
}

func TestResolveAuthFailures(t *testing.T) {
	t.Run("token endpoint rejects credentials", func(t *testing.T) {
		srv := newFakeAuthServer()
		defer srv.Close()
		srv.tokenStatus = http.StatusUnauthorized

		client := newClient(t, srv.clientConfig())
		_, err := client.Resolve(context.Background(), "abc-123")
		assert.ErrorIs(t, err, sentinel.ErrAuth)
	})

	t.Run("credentials not configured", func(t *testing.T) {
		srv := newFakeAuthServer()
		defer srv.Close()
		cfg := srv.clientConfig()
		cfg.ClientSecret = ""

		client := newClient(t, cfg)
		_, err := client.Resolve(context.Background(), "abc-123")
		assert.ErrorIs(t, err, sentinel.ErrAuth)
	})
}

func TestTokenIsCachedAcrossResolves(t *testing.T) {
	srv := newFakeAuthServer()
	defer srv.Close()

	client := newClient(t, srv.clientConfig())
	for i := 0; i < 3; i++ {
		_, err := client.Resolve(context.Background(), "abc-123")
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), srv.tokenRequests.Load())
}

func TestExpiredTokenIsReExchanged(t *testing.T) {
	srv := newFakeAuthServer()
	defer srv.Close()

	// A refresh buffer larger than the token lifetime forces an exchange per call.
	client := newClient(t, srv.clientConfig(), WithRefreshBuffer(2*time.Hour))
	for i := 0; i < 2; i++ {
		_, err := client.Resolve(context.Background(), "abc-123")
		require.NoError(t, err)
	}

	assert.Equal(t, int64(2), srv.tokenRequests.Load())
}

func TestResolvePathEscapesIdentifier(t *testing.T) {
	var gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"test-token","expires_in":3600}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"email":"a@ex.com"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.AuthServer{
		APIBaseURL:           srv.URL + "/api",
		TokenEndpoint:        srv.URL + "/oauth2/token",
		ClientID:             "id",
		ClientSecret:         "secret",
		UserEndpointTemplate: "/users/%s",
		TokenTimeout:         5 * time.Second,
		FetchTimeout:         5 * time.Second,
	}

	client := newClient(t, cfg)
	_, err := client.Resolve(context.Background(), "a/b c")
	require.NoError(t, err)
	assert.Equal(t, "/api/users/a%2Fb%20c", gotPath)
}
