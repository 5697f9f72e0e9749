// Package session holds the in-process authentication context: who is
// signed in, a durable "was logged in" hint for the first render, and the
// account and upload operations that act on behalf of that user.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/emissionkeeper/internal/identity"
	"github.com/dmitrijs2005/emissionkeeper/internal/logging"
)

// CredentialService creates, verifies and reports credentials.
type CredentialService interface {
	CreateAccount(ctx context.Context, email, password string) (*identity.Credential, error)
	SignIn(ctx context.Context, email, password string) (*identity.Credential, error)
	SignInFederated(ctx context.Context) (*identity.Credential, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	// Subscribe calls fn with the current user once, then on every change.
	Subscribe(fn func(*identity.User)) (unsubscribe func())
}

// ObjectStore keeps uploaded blobs.
type ObjectStore interface {
	Store(ctx context.Context, path string, data []byte) (string, error)
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// DocumentStore keeps per-user records. An empty id asks the store to
// generate one.
type DocumentStore interface {
	WriteDocument(ctx context.Context, collectionPath, id string, data map[string]any) (string, error)
	ListDocuments(ctx context.Context, collectionPath string) ([]map[string]any, error)
}

// HintStore persists the isLoggedIn hint.
type HintStore interface {
	Load(ctx context.Context) (bool, error)
	Store(ctx context.Context, loggedIn bool) error
	Clear(ctx context.Context) error
}

type State int

const (
	StateUnknown State = iota
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateAnonymous:
		return "ANONYMOUS"
	default:
		return "UNKNOWN"
	}
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	State State
	User  *identity.User
	// LoggedIn starts from the durable hint and follows notifications.
	LoggedIn  bool
	LastError string
}

type Deps struct {
	Credentials CredentialService
	Objects     ObjectStore
	Documents   DocumentStore
	Hint        HintStore
	Logger      logging.Logger
}

type Option func(*Session)

// WithClock overrides the time source used for upload names and records.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

var ErrMissingDependency = errors.New("session: missing dependency")

type Session struct {
	creds   CredentialService
	objects ObjectStore
	docs    DocumentStore
	hint    HintStore
	log     logging.Logger
	now     func() time.Time

	// hintMu orders hint writes with the state changes that caused them.
	hintMu sync.Mutex

	mu       sync.Mutex
	state    State
	user     *identity.User
	loggedIn bool
	lastErr  string
	closed   bool

	unsubscribe func()
	closeOnce   sync.Once
}

// New builds a session, seeds LoggedIn from the durable hint and subscribes
// to credential changes. The caller must Close it.
func New(ctx context.Context, deps Deps, opts ...Option) (*Session, error) {
	if deps.Credentials == nil || deps.Objects == nil || deps.Documents == nil || deps.Hint == nil {
		return nil, ErrMissingDependency
	}

	s := &Session{
		creds:   deps.Credentials,
		objects: deps.Objects,
		docs:    deps.Documents,
		hint:    deps.Hint,
		log:     deps.Logger,
		now:     time.Now,
		state:   StateUnknown,
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	for _, o := range opts {
		o(s)
	}

	loggedIn, err := s.hint.Load(ctx)
	if err != nil {
		s.log.Warn(ctx, "load login hint", "error", err)
	}
	s.loggedIn = loggedIn

	s.unsubscribe = s.creds.Subscribe(s.onUserChanged)
	return s, nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:     s.state,
		User:      cloneUser(s.user),
		LoggedIn:  s.loggedIn,
		LastError: s.lastErr,
	}
}

// Close releases the credential subscription. Later notifications are
// ignored. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
	return nil
}

func (s *Session) onUserChanged(u *identity.User) {
	s.hintMu.Lock()
	defer s.hintMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.user = cloneUser(u)
	s.loggedIn = u != nil
	if u != nil {
		s.state = StateAuthenticated
	} else {
		s.state = StateAnonymous
	}
	loggedIn := s.loggedIn
	s.mu.Unlock()

	ctx := context.Background()
	if err := s.hint.Store(ctx, loggedIn); err != nil {
		s.log.Warn(ctx, "store login hint", "logged_in", loggedIn, "error", err)
	}
}

func (s *Session) currentUser() *identity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUser(s.user)
}

// fail records msg as the last error, logs it and returns it as an *Error.
func (s *Session) fail(ctx context.Context, op string, kind Kind, msg string, cause error) error {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()

	args := []any{"op", op, "kind", kind.String()}
	if cause != nil {
		args = append(args, "error", cause)
	}
	switch kind {
	case KindFailed, KindFederated:
		s.log.Error(ctx, msg, args...)
	default:
		s.log.Warn(ctx, msg, args...)
	}

	return &Error{Op: op, Kind: kind, Message: msg, Err: cause}
}

func (s *Session) succeed() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
}

func cloneUser(u *identity.User) *identity.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
