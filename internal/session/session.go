// Package session turns the identity provider's report about a caller into
// the session state pages render: who is logged in, their user profile, and
// whether to ask them to complete it.
package session

import (
	"context"
	"log/slog"
	"sync"

	"marketplace-bff/internal/auth"
	"marketplace-bff/internal/marketplace"
	"marketplace-bff/internal/models"
	"marketplace-bff/internal/query"
)

// LoginStatus is the identity provider's progress.
type LoginStatus string

const (
	LoginInitializing LoginStatus = "initializing"
	LoginIdle         LoginStatus = "idle"
	LoginInProgress   LoginStatus = "logging-in"
	LoginSuccess      LoginStatus = "success"
	LoginError        LoginStatus = "login-error"
)

// ParseLoginStatus maps a reported status to a LoginStatus; unknown or empty
// values yield ok=false.
func ParseLoginStatus(s string) (LoginStatus, bool) {
	switch st := LoginStatus(s); st {
	case LoginInitializing, LoginIdle, LoginInProgress, LoginSuccess, LoginError:
		return st, true
	}
	return "", false
}

// pending reports whether the identity provider may still change the
// principal.
func (s LoginStatus) pending() bool {
	return s == LoginInitializing || s == LoginInProgress
}

type Identity struct {
	Status    LoginStatus
	Principal string
}

func (i Identity) Authenticated() bool {
	return !auth.Identity{Principal: i.Principal}.Anonymous()
}

type ProfileStatus string

const (
	ProfileUnavailable ProfileStatus = "unavailable"
	ProfileLoading     ProfileStatus = "loading"
	ProfileAbsent      ProfileStatus = "absent"
	ProfilePresent     ProfileStatus = "present"
	ProfileError       ProfileStatus = "error"
)

type State struct {
	IsAuthenticated  bool                `json:"isAuthenticated"`
	Principal        string              `json:"principal,omitempty"`
	LoginStatus      LoginStatus         `json:"loginStatus"`
	Profile          *models.UserProfile `json:"profile"`
	ProfileStatus    ProfileStatus       `json:"profileStatus"`
	ShowProfileSetup bool                `json:"showProfileSetup"`
	Err              error               `json:"-"`
}

// PromptLedger records which principals have been asked to set up their
// profile. FirstPrompt returns true for the first call per principal only.
type PromptLedger interface {
	FirstPrompt(ctx context.Context, principal string) (bool, error)
}

type MemoryLedger struct {
	mu       sync.Mutex
	prompted map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{prompted: make(map[string]struct{})}
}

func (l *MemoryLedger) FirstPrompt(_ context.Context, principal string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.prompted[principal]; ok {
		return false, nil
	}
	l.prompted[principal] = struct{}{}
	return true, nil
}

type Resolver struct {
	market *marketplace.Client
	ledger PromptLedger
	logger *slog.Logger
}

func NewResolver(market *marketplace.Client, ledger PromptLedger, logger *slog.Logger) *Resolver {
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	return &Resolver{
		market: market,
		ledger: ledger,
		logger: logger.With("component", "session"),
	}
}

// Resolve loads the caller's profile when a principal is known and decides
// whether to show the profile setup prompt. ctx must carry the caller's
// auth.Identity so the profile lookup runs as them.
func (r *Resolver) Resolve(ctx context.Context, id Identity) State {
	st, ok := r.base(id)
	if !ok {
		return st
	}

	res := r.market.CallerProfile(ctx, st.Principal)
	r.apply(&st, res)

	if st.ProfileStatus == ProfileAbsent {
		first, err := r.ledger.FirstPrompt(ctx, st.Principal)
		if err != nil {
			r.logger.Warn("Prompt ledger failed", "principal", st.Principal, "error", err)
		}
		st.ShowProfileSetup = first
	}
	return st
}

// Peek is Resolve without fetching. It never consumes the profile setup
// prompt, so ShowProfileSetup is always false.
func (r *Resolver) Peek(ctx context.Context, id Identity) State {
	st, ok := r.base(id)
	if !ok {
		return st
	}
	r.apply(&st, r.market.PeekCallerProfile(ctx, st.Principal))
	return st
}

func (r *Resolver) base(id Identity) (State, bool) {
	st := State{
		IsAuthenticated: id.Authenticated(),
		LoginStatus:     id.Status,
		ProfileStatus:   ProfileUnavailable,
	}
	if st.IsAuthenticated {
		st.Principal = id.Principal
	}
	if id.Status.pending() {
		st.ProfileStatus = ProfileLoading
		return st, false
	}
	return st, st.IsAuthenticated
}

func (r *Resolver) apply(st *State, res query.Result[*models.UserProfile]) {
	switch {
	case res.Status == query.StatusError:
		st.ProfileStatus = ProfileError
		st.Err = res.Err
	case res.HasData && res.Data != nil:
		st.ProfileStatus = ProfilePresent
		st.Profile = res.Data
	case res.HasData && res.IsFetched:
		st.ProfileStatus = ProfileAbsent
	default:
		// Disabled, idle or still in flight: absence is not known yet.
		st.ProfileStatus = ProfileLoading
	}
}
