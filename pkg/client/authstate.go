package client

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
)

// Status is where a client is in its sign-in lifecycle:
//
//	unauthenticated → resolving → authenticated | unauthenticated
type Status int

const (
	StatusUnauthenticated Status = iota
	StatusResolving
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusResolving:
		return "resolving"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// State is a snapshot of the auth state. Role and AccountID are set only
// when Status is StatusAuthenticated.
type State struct {
	Status    Status
	AccountID uuid.UUID
	Role      model.Role
	token     string
}

func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

// Is reports whether the signed-in account has role.
func (s State) Is(role model.Role) bool {
	return s.Authenticated() && s.Role == role
}

// AuthState holds the current auth state and notifies subscribers of every
// change. Subscribers run synchronously, outside the lock, in subscription
// order.
type AuthState struct {
	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	order  []int
	nextID int
}

func NewAuthState() *AuthState {
	return &AuthState{subs: map[int]func(State){}}
}

func (a *AuthState) Current() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Subscribe calls fn with the current state right away and again after every
// change until the returned func is called.
func (a *AuthState) Subscribe(fn func(State)) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	a.order = append(a.order, id)
	current := a.state
	a.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.subs, id)
			for i, v := range a.order {
				if v == id {
					a.order = append(a.order[:i], a.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (a *AuthState) set(s State) {
	a.mu.Lock()
	a.state = s
	fns := make([]func(State), 0, len(a.order))
	for _, id := range a.order {
		fns = append(fns, a.subs[id])
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (a *AuthState) resolving() {
	a.set(State{Status: StatusResolving})
}

func (a *AuthState) signedIn(id uuid.UUID, role model.Role, token string) {
	a.set(State{Status: StatusAuthenticated, AccountID: id, Role: role, token: token})
}

func (a *AuthState) signedOut() {
	a.set(State{Status: StatusUnauthenticated})
}

func (a *AuthState) token() string {
	return a.Current().token
}
