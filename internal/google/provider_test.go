package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/agenda/internal/account"
)

// fakeGoogle emulates the token endpoint and the userinfo API.
type fakeGoogle struct {
	mu sync.Mutex
	// refreshTokens maps a refresh token to the access token it yields.
	refreshTokens map[string]string
	// codes maps an authorization code to the access token it yields.
	codes map[string]string
	// profiles maps an access token to its userinfo response.
	profiles map[string]map[string]any
	// rotate makes the token endpoint issue a new refresh token.
	rotate bool

	grants []string
}

func newFakeGoogle() *fakeGoogle {
	return &fakeGoogle{
		refreshTokens: map[string]string{},
		codes:         map[string]string{},
		profiles:      map[string]map[string]any{},
	}
}

func (f *fakeGoogle) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		defer f.mu.Unlock()

		grant := r.PostForm.Get("grant_type")
		f.grants = append(f.grants, grant)

		var access string
		var ok bool
		switch grant {
		case "authorization_code":
			access, ok = f.codes[r.PostForm.Get("code")]
		case "refresh_token":
			access, ok = f.refreshTokens[r.PostForm.Get("refresh_token")]
		}
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
			return
		}

		body := map[string]any{"access_token": access, "token_type": "Bearer", "expires_in": 3600}
		if grant == "authorization_code" || f.rotate {
			body["refresh_token"] = "rt-" + access
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		profile, ok := f.profiles[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(profile)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// staticAuthorizer returns a fixed code and records the consent URL.
type staticAuthorizer struct {
	code string
	err  error
	url  string
}

func (a *staticAuthorizer) Authorize(_ context.Context, authURL AuthURLFunc) (string, string, error) {
	a.url = authURL("http://127.0.0.1:9999/callback", "state-1")
	return a.code, "http://127.0.0.1:9999/callback", a.err
}

func newTestProvider(t *testing.T, fake *fakeGoogle, auth Authorizer) *Provider {
	t.Helper()
	srv := fake.server(t)
	return NewProvider(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/auth",
			TokenURL: srv.URL + "/token",
		},
	},
		WithAuthorizer(auth),
		WithHTTPClient(srv.Client()),
		WithUserinfoEndpoint(srv.URL+"/"),
	)
}

func TestProvider_Login(t *testing.T) {
	fake := newFakeGoogle()
	fake.codes["good-code"] = "at-1"
	fake.profiles["at-1"] = map[string]any{"id": "1001", "email": "jane@example.com", "name": "Jane", "picture": "https://pic"}
	auth := &staticAuthorizer{code: "good-code"}

	p := newTestProvider(t, fake, auth)
	acc, err := p.Login(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "1001", acc.ID)
	assert.Equal(t, "jane@example.com", acc.Email)
	assert.Equal(t, "Jane", acc.Name)
	assert.Equal(t, "https://pic", acc.Picture)
	assert.Equal(t, "at-1", acc.Token.AccessToken)
	assert.Equal(t, "rt-at-1", acc.Token.RefreshToken)
	assert.NotZero(t, acc.Token.Expiry)
	assert.Equal(t, account.Active(), acc.Status)
	assert.Nil(t, acc.Calendars)
	assert.Equal(t, []string{"authorization_code"}, fake.grants)

	u, err := url.Parse(auth.url)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/calendar.readonly")
	assert.Empty(t, q.Get("login_hint"))
}

func TestProvider_LoginFailures(t *testing.T) {
	tests := []struct {
		name   string
		auth   Authorizer
		wantOp string
	}{
		{name: "cancelled", auth: &staticAuthorizer{err: context.Canceled}, wantOp: OpAuthorize},
		{name: "bad code", auth: &staticAuthorizer{code: "wrong"}, wantOp: OpExchange},
		{name: "no authorizer", auth: nil, wantOp: OpAuthorize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, newFakeGoogle(), tt.auth)
			_, err := p.Login(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAuthFailure))
			assert.False(t, errors.Is(err, ErrAuthMismatch))

			var authErr *AuthError
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tt.wantOp, authErr.Op)
		})
	}
}

func TestProvider_Refresh(t *testing.T) {
	fake := newFakeGoogle()
	fake.refreshTokens["rt-old"] = "at-2"
	fake.profiles["at-2"] = map[string]any{"id": "1001", "email": "Jane@Example.com", "name": "Jane"}

	p := newTestProvider(t, fake, nil)
	acc, err := p.Refresh(context.Background(), "jane@example.com", "rt-old")
	require.NoError(t, err)

	assert.Equal(t, "at-2", acc.Token.AccessToken)
	assert.Equal(t, "rt-old", acc.Token.RefreshToken, "refresh token is kept when not rotated")
	assert.Equal(t, "1001", acc.ID)
	assert.Nil(t, acc.Calendars)
	assert.Equal(t, []string{"refresh_token"}, fake.grants)
}

func TestProvider_RefreshRotatesToken(t *testing.T) {
	fake := newFakeGoogle()
	fake.rotate = true
	fake.refreshTokens["rt-old"] = "at-3"
	fake.profiles["at-3"] = map[string]any{"id": "1001", "email": "jane@example.com"}

	p := newTestProvider(t, fake, nil)
	acc, err := p.Refresh(context.Background(), "jane@example.com", "rt-old")
	require.NoError(t, err)
	assert.Equal(t, "rt-at-3", acc.Token.RefreshToken)
}

func TestProvider_RefreshFailures(t *testing.T) {
	fake := newFakeGoogle()
	fake.refreshTokens["rt-other"] = "at-other"
	fake.profiles["at-other"] = map[string]any{"id": "2002", "email": "bob@example.com"}
	fake.refreshTokens["rt-noprofile"] = "at-noprofile"

	tests := []struct {
		name         string
		refreshToken string
		mismatch     bool
		wantOp       string
	}{
		{name: "missing refresh token", refreshToken: "", wantOp: OpRefresh},
		{name: "revoked", refreshToken: "rt-revoked", wantOp: OpRefresh},
		{name: "profile rejected", refreshToken: "rt-noprofile", wantOp: OpUserinfo},
		{name: "different user", refreshToken: "rt-other", mismatch: true},
	}

	p := newTestProvider(t, fake, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Refresh(context.Background(), "jane@example.com", tt.refreshToken)
			require.Error(t, err)

			if tt.mismatch {
				assert.True(t, errors.Is(err, ErrAuthMismatch))
				assert.False(t, errors.Is(err, ErrAuthFailure))
				var mm *MismatchError
				require.True(t, errors.As(err, &mm))
				assert.Equal(t, "jane@example.com", mm.Expected)
				assert.Equal(t, "bob@example.com", mm.Got)
				return
			}

			assert.True(t, errors.Is(err, ErrAuthFailure))
			var authErr *AuthError
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tt.wantOp, authErr.Op)
			assert.Equal(t, "jane@example.com", authErr.Email)
		})
	}
}

func TestProvider_Reconnect(t *testing.T) {
	fake := newFakeGoogle()
	fake.codes["code"] = "at-new"
	fake.profiles["at-new"] = map[string]any{"id": "1001", "email": "jane@example.com", "name": "Jane D."}
	auth := &staticAuthorizer{code: "code"}

	existing := account.Account{
		ID:        "1001",
		Email:     "jane@example.com",
		Token:     account.Token{AccessToken: "dead"},
		Status:    account.Failed("token revoked"),
		Calendars: []account.CalendarConfig{{ID: "jane@example.com", Visible: true}},
	}

	p := newTestProvider(t, fake, auth)
	acc, err := p.Reconnect(context.Background(), existing)
	require.NoError(t, err)

	assert.Equal(t, "at-new", acc.Token.AccessToken)
	assert.Equal(t, "Jane D.", acc.Name)
	assert.False(t, acc.Status.IsError())
	assert.Equal(t, existing.Calendars, acc.Calendars)

	u, err := url.Parse(auth.url)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", u.Query().Get("login_hint"))
}

func TestProvider_ReconnectMismatch(t *testing.T) {
	fake := newFakeGoogle()
	fake.codes["code"] = "at-bob"
	fake.profiles["at-bob"] = map[string]any{"id": "2002", "email": "bob@example.com"}

	p := newTestProvider(t, fake, &staticAuthorizer{code: "code"})
	_, err := p.Reconnect(context.Background(), account.Account{ID: "1001", Email: "jane@example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthMismatch))
}
