package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockTwitchOAuth fakes the Twitch OAuth token endpoint at /oauth2/token.
type MockTwitchOAuth struct {
	*httptest.Server

	mu     sync.Mutex
	status int
	body   map[string]any
	forms  []map[string]string
}

// NewMockTwitchOAuth starts the fake endpoint. It answers 401 until a
// response is configured.
func NewMockTwitchOAuth(t *testing.T) *MockTwitchOAuth {
	t.Helper()
	m := &MockTwitchOAuth{status: http.StatusUnauthorized, body: map[string]any{"status": 401, "message": "Invalid refresh token"}}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// TokenURL is the URL to pass as the token endpoint.
func (m *MockTwitchOAuth) TokenURL() string { return m.URL + "/oauth2/token" }

// MockTokenResponse makes the endpoint issue the given tokens. Twitch sends
// scope as an array.
func (m *MockTwitchOAuth) MockTokenResponse(accessToken, refreshToken string, expiresIn int, scope ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = http.StatusOK
	m.body = map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    expiresIn,
		"scope":         scope,
		"token_type":    "bearer",
	}
}

// Requests returns the form values of every token request received.
func (m *MockTwitchOAuth) Requests() []map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]string(nil), m.forms...)
}

func (m *MockTwitchOAuth) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/oauth2/token" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = r.ParseForm()
	form := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}

	m.mu.Lock()
	m.forms = append(m.forms, form)
	status, body := m.status, m.body
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
}
