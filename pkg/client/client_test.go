package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
)

type fakeAPI struct {
	mu        sync.Mutex
	accountID uuid.UUID
	tokens    map[string]bool
}

func (f *fakeAPI) setToken(token string, valid bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if valid {
		f.tokens[token] = true
		return
	}
	delete(f.tokens, token)
}

func (f *fakeAPI) tokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	switch r.URL.Path {
	case "/api/v1/auth/signin":
		var req model.SignInRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "correct-horse" {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"status": "error", "message": "Invalid email or password."})
			return
		}
		f.tokens["tok-1"] = true
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "data": model.Session{
			AccessToken: "tok-1", AccountID: f.accountID, Role: model.RolePatient, ExpiresAt: time.Now().Add(time.Hour),
		}})
	case "/api/v1/auth/signout":
		delete(f.tokens, token)
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
	case "/api/v1/me":
		if !f.tokens[token] {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"status": "error", "message": "Your session has expired. Please sign in again."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "data": Profile{
			Account: &model.Account{Base: model.Base{ID: f.accountID}, Role: model.RolePatient, Email: "pat@example.com"},
		}})
	case "/api/v1/doctors":
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "data": []model.DoctorProfile{{Name: "Dr. Asha Rao"}}})
	default:
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"status": "error", "message": "not found"})
	}
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{accountID: uuid.New(), tokens: map[string]bool{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/api/v1"), api
}

func record(a *AuthState) (func() []Status, func()) {
	var mu sync.Mutex
	var seen []Status
	unsub := a.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.Status)
	})
	return func() []Status {
		mu.Lock()
		defer mu.Unlock()
		return append([]Status(nil), seen...)
	}, unsub
}

func TestSignInTransitions(t *testing.T) {
	c, api := newTestClient(t)
	seen, unsub := record(c.Auth())
	defer unsub()

	session, err := c.SignIn(context.Background(), "pat@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.AccessToken)

	assert.Equal(t, []Status{StatusUnauthenticated, StatusResolving, StatusAuthenticated}, seen())
	state := c.Auth().Current()
	assert.True(t, state.Is(model.RolePatient))
	assert.Equal(t, api.accountID, state.AccountID)
}

func TestSignInRejected(t *testing.T) {
	c, _ := newTestClient(t)
	seen, unsub := record(c.Auth())
	defer unsub()

	_, err := c.SignIn(context.Background(), "pat@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, "Invalid email or password.", err.(*APIError).Message)
	assert.Equal(t, []Status{StatusUnauthenticated, StatusResolving, StatusUnauthenticated}, seen())
}

func TestSignOut(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	_, err := c.SignIn(ctx, "pat@example.com", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, c.SignOut(ctx))
	assert.False(t, c.Auth().Current().Authenticated())
	assert.Zero(t, api.tokenCount())

	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestRestore(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	api.setToken("stored", true)

	require.NoError(t, c.Restore(ctx, "stored"))
	assert.True(t, c.Auth().Current().Authenticated())
	assert.Equal(t, "stored", c.Token())

	other, _ := newTestClient(t)
	err := other.Restore(ctx, "stale")
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, StatusUnauthenticated, other.Auth().Current().Status)
}

func TestExpiredSessionSignsOut(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	_, err := c.SignIn(ctx, "pat@example.com", "correct-horse")
	require.NoError(t, err)

	api.setToken("tok-1", false)
	_, err = c.Me(ctx)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, StatusUnauthenticated, c.Auth().Current().Status)
}

func TestUnsubscribe(t *testing.T) {
	a := NewAuthState()
	seen, unsub := record(a)
	unsub()
	unsub()

	a.resolving()
	assert.Equal(t, []Status{StatusUnauthenticated}, seen())
}

func TestListDoctors(t *testing.T) {
	c, _ := newTestClient(t)
	doctors, err := c.ListDoctors(context.Background())
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	assert.Equal(t, "Dr. Asha Rao", doctors[0].Name)
}
