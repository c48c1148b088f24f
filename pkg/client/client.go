// Package client is a typed Go client for the hospital API. It keeps the
// session in an AuthState so callers can react to sign-in and sign-out.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/hospital-api/internal/live"
	"github.com/jwalitptl/hospital-api/internal/model"
)

var ErrNotSignedIn = errors.New("not signed in")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Profile is the response of Me.
type Profile struct {
	Account *model.Account       `json:"account"`
	Doctor  *model.DoctorProfile `json:"doctor,omitempty"`
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

type Client struct {
	baseURL string
	http    *http.Client
	auth    *AuthState
}

// New returns a client for the API rooted at baseURL, e.g.
// "https://api.example.com/api/v1".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		auth:    NewAuthState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Auth() *AuthState {
	return c.auth
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

func (c *Client) authed(ctx context.Context, method, path string, body, out interface{}) error {
	token := c.auth.token()
	if token == "" {
		return ErrNotSignedIn
	}
	err := c.do(ctx, method, path, token, body, out)
	if IsStatus(err, http.StatusUnauthorized) {
		c.auth.signedOut()
	}
	return err
}

func (c *Client) SignUp(ctx context.Context, req *model.SignUpRequest) (*model.Account, error) {
	var account model.Account
	if err := c.do(ctx, http.MethodPost, "/auth/signup", "", req, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// SignIn moves the auth state through resolving to authenticated, or back
// to unauthenticated when the credentials are rejected.
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	c.auth.resolving()

	var session model.Session
	err := c.do(ctx, http.MethodPost, "/auth/signin", "", &model.SignInRequest{Email: email, Password: password}, &session)
	if err != nil {
		c.auth.signedOut()
		return nil, err
	}
	c.auth.signedIn(session.AccountID, session.Role, session.AccessToken)
	return &session, nil
}

// SignOut revokes the session on the server. The local state is cleared
// even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.auth.token()
	if token == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/auth/signout", token, nil, nil)
	c.auth.signedOut()
	return err
}

// Restore resumes a session from a stored token by resolving the account
// it belongs to.
func (c *Client) Restore(ctx context.Context, token string) error {
	c.auth.resolving()

	var profile Profile
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, &profile); err != nil {
		c.auth.signedOut()
		return err
	}
	if profile.Account == nil {
		c.auth.signedOut()
		return errors.New("me returned no account")
	}
	c.auth.signedIn(profile.Account.ID, profile.Account.Role, token)
	return nil
}

// Token returns the current access token, for persisting across restarts.
func (c *Client) Token() string {
	return c.auth.token()
}

func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := c.authed(ctx, http.MethodGet, "/me", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) ListDoctors(ctx context.Context) ([]*model.DoctorProfile, error) {
	var doctors []*model.DoctorProfile
	if err := c.do(ctx, http.MethodGet, "/doctors", "", nil, &doctors); err != nil {
		return nil, err
	}
	return doctors, nil
}

func (c *Client) GetDoctor(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error) {
	var doctor model.DoctorProfile
	if err := c.do(ctx, http.MethodGet, "/doctors/"+id.String(), "", nil, &doctor); err != nil {
		return nil, err
	}
	return &doctor, nil
}

func (c *Client) GetDoctorBySlug(ctx context.Context, slug string) (*model.DoctorProfile, error) {
	var doctor model.DoctorProfile
	if err := c.do(ctx, http.MethodGet, "/doctors/slug/"+url.PathEscape(slug), "", nil, &doctor); err != nil {
		return nil, err
	}
	return &doctor, nil
}

func (c *Client) BookAppointment(ctx context.Context, req *model.BookAppointmentRequest) (*model.Appointment, error) {
	var apt model.Appointment
	if err := c.authed(ctx, http.MethodPost, "/appointments", req, &apt); err != nil {
		return nil, err
	}
	return &apt, nil
}

// ListAppointments returns the signed-in account's appointments. An empty
// status lists all of them.
func (c *Client) ListAppointments(ctx context.Context, status model.AppointmentStatus) ([]*model.Appointment, error) {
	path := "/appointments"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var list []*model.Appointment
	if err := c.authed(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) CancelAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var apt model.Appointment
	if err := c.authed(ctx, http.MethodPost, "/appointments/"+id.String()+"/cancel", nil, &apt); err != nil {
		return nil, err
	}
	return &apt, nil
}

// LiveConn is an open live-query socket.
type LiveConn struct {
	ws *websocket.Conn
}

// DialLive opens the live-query socket with the current session.
func (c *Client) DialLive(ctx context.Context) (*LiveConn, error) {
	token := c.auth.token()
	if token == "" {
		return nil, ErrNotSignedIn
	}
	u, err := url.Parse(c.baseURL + "/live")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial live: %w", err)
	}
	return &LiveConn{ws: ws}, nil
}

func (l *LiveConn) Subscribe(topics ...string) error {
	return l.ws.WriteJSON(live.ClientMessage{Action: "subscribe", Topics: topics})
}

func (l *LiveConn) Unsubscribe(topics ...string) error {
	return l.ws.WriteJSON(live.ClientMessage{Action: "unsubscribe", Topics: topics})
}

// Next blocks until the server pushes a snapshot or a topic error.
func (l *LiveConn) Next() (*live.ServerMessage, error) {
	var msg live.ServerMessage
	if err := l.ws.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (l *LiveConn) Close() error {
	return l.ws.Close()
}
