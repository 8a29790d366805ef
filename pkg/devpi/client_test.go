package devpi

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apierr "github.com/devpi-tools/devpi-client/pkg/errors"
	"github.com/devpi-tools/devpi-client/pkg/session"
)

func TestNewConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty base URL", Config{}},
		{"non-http scheme", Config{BaseURL: "ftp://example.com"}},
		{"negative timeout", Config{BaseURL: "http://localhost:3141", Timeout: -time.Second}},
		{"username without password", Config{BaseURL: "http://localhost:3141", Username: "root"}},
		{"password without username", Config{BaseURL: "http://localhost:3141", Password: "secret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !apierr.Is(err, apierr.CodeValidation) {
				t.Errorf("New() error code = %q, want %q", apierr.GetCode(err), apierr.CodeValidation)
			}
		})
	}
}

func TestNewNormalizesBaseURL(t *testing.T) {
	c, err := New(Config{BaseURL: "  http://localhost:3141///  "})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer c.Close()
	if got := c.BaseURL(); got != "http://localhost:3141" {
		t.Errorf("BaseURL() = %q, want trailing slashes trimmed", got)
	}
}

func TestNewCopiesHTTPClient(t *testing.T) {
	supplied := &http.Client{}
	c, err := New(Config{BaseURL: "http://localhost:3141", HTTPClient: supplied})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer c.Close()
	if supplied.Timeout != 0 {
		t.Errorf("caller's Timeout = %v, New must not mutate the supplied client", supplied.Timeout)
	}
	if c.http == supplied {
		t.Error("client should hold its own copy of the supplied http.Client")
	}
	if c.http.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want default %v", c.http.Timeout, defaultTimeout)
	}
}

func TestNewAuthPrecedence(t *testing.T) {
	c, err := New(Config{
		BaseURL:  "http://localhost:3141",
		Username: "root",
		Password: "secret",
		Token:    "devpi-abc",
	})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer c.Close()
	if c.creds.mode != authToken {
		t.Error("token credentials should take precedence over username/password")
	}
}

func TestNewUnauthenticated(t *testing.T) {
	c, err := New(Config{BaseURL: "http://localhost:3141"})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer c.Close()
	if c.IsAuthenticated() {
		t.Error("client without credentials should report unauthenticated")
	}
}

func TestAuthSwitching(t *testing.T) {
	c, err := New(Config{BaseURL: "http://localhost:3141"})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer c.Close()

	if err := c.SetBasic("", "secret"); !apierr.Is(err, apierr.CodeValidation) {
		t.Errorf("SetBasic with empty username: code = %q, want VALIDATION", apierr.GetCode(err))
	}
	if err := c.SetToken("   "); !apierr.Is(err, apierr.CodeValidation) {
		t.Errorf("SetToken with blank token: code = %q, want VALIDATION", apierr.GetCode(err))
	}

	if err := c.SetBasic("root", "secret"); err != nil {
		t.Fatalf("SetBasic() returned error: %v", err)
	}
	if !c.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after SetBasic")
	}

	if err := c.SetToken("devpi-abc"); err != nil {
		t.Fatalf("SetToken() returned error: %v", err)
	}
	if c.creds.mode != authToken {
		t.Error("SetToken should replace password credentials")
	}

	c.Logout()
	if c.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after Logout")
	}
}

func TestWith(t *testing.T) {
	var got *Client
	err := With(Config{BaseURL: "http://localhost:3141"}, func(c *Client) error {
		got = c
		return nil
	})
	if err != nil {
		t.Fatalf("With() returned error: %v", err)
	}
	if got == nil {
		t.Fatal("With() did not invoke the callback")
	}

	wantErr := stderrors.New("boom")
	if err := With(Config{BaseURL: "http://localhost:3141"}, func(*Client) error {
		return wantErr
	}); !stderrors.Is(err, wantErr) {
		t.Errorf("With() error = %v, want the callback's error", err)
	}

	if err := With(Config{}, func(*Client) error { return nil }); !apierr.Is(err, apierr.CodeValidation) {
		t.Error("With() should surface config validation errors")
	}
}

func TestServerInfo(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/+api" {
			t.Errorf("path = %q, want /+api", r.URL.Path)
		}
		w.Write([]byte(`{"result": {"server-version": "6.9.2", "login": "/+login"}, "type": "apiconfig"}`))
	}))

	info, err := c.ServerInfo(context.Background())
	if err != nil {
		t.Fatalf("ServerInfo() returned error: %v", err)
	}
	if got := info["server-version"]; got != "6.9.2" {
		t.Errorf("server-version = %v, want 6.9.2", got)
	}
}

func TestSaveLoginRequiresToken(t *testing.T) {
	c, err := New(Config{BaseURL: "http://localhost:3141", Username: "root", Password: "secret"})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer c.Close()

	store, err := session.NewFileStore(nil, t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() returned error: %v", err)
	}
	if _, err := c.SaveLogin(context.Background(), store, time.Hour); !apierr.Is(err, apierr.CodeValidation) {
		t.Errorf("SaveLogin with password auth: code = %q, want VALIDATION", apierr.GetCode(err))
	}
}

func TestSaveLoginAndRestore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Token: "devpi-abc"})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer c.Close()

	store, err := session.NewFileStore(nil, t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() returned error: %v", err)
	}

	login, err := c.SaveLogin(context.Background(), store, time.Hour)
	if err != nil {
		t.Fatalf("SaveLogin() returned error: %v", err)
	}
	if login.Token != "devpi-abc" {
		t.Errorf("saved token = %q, want devpi-abc", login.Token)
	}
	if login.BaseURL != c.BaseURL() {
		t.Errorf("saved base URL = %q, want %q", login.BaseURL, c.BaseURL())
	}

	restored, err := Restore(context.Background(), store, login.ID)
	if err != nil {
		t.Fatalf("Restore() returned error: %v", err)
	}
	defer restored.Close()
	if restored.BaseURL() != c.BaseURL() {
		t.Errorf("restored base URL = %q, want %q", restored.BaseURL(), c.BaseURL())
	}
	if restored.creds.mode != authToken || restored.creds.secret != "devpi-abc" {
		t.Error("restored client should use the saved token")
	}
}

func TestRestoreUnknownLogin(t *testing.T) {
	store, err := session.NewFileStore(nil, t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() returned error: %v", err)
	}
	_, err = Restore(context.Background(), store, "missing")
	if !apierr.Is(err, apierr.CodeAuthentication) {
		t.Errorf("Restore() code = %q, want AUTHENTICATION", apierr.GetCode(err))
	}
}
