package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/emissionkeeper/internal/logging"
)

// Directory stores accounts.
type Directory interface {
	Create(ctx context.Context, acc Account) (Account, error)
	// GetByEmail and GetByID return ErrUserNotFound when there is no match.
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	// LinkFederated returns the account bound to p, creating or linking one
	// by email on first use.
	LinkFederated(ctx context.Context, p Profile) (Account, error)
}

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// Federator runs an interactive consent flow with an external provider.
type Federator interface {
	Authenticate(ctx context.Context) (Profile, error)
}

// CredentialCache persists the last credential token across restarts.
type CredentialCache interface {
	Load(ctx context.Context) (string, error)
	Store(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

type Option func(*Client)

func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithFederator(f Federator) Option {
	return func(c *Client) { c.federator = f }
}

func WithCredentialCache(cc CredentialCache) Option {
	return func(c *Client) { c.cache = cc }
}

// WithPasswordReset enables SendPasswordReset. Links are linkPrefix followed
// by the raw token; tokens expire after ttl.
func WithPasswordReset(tokens ResetTokens, mailer Mailer, linkPrefix string, ttl time.Duration) Option {
	return func(c *Client) {
		c.resets = tokens
		c.mailer = mailer
		c.resetURL = linkPrefix
		c.resetTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is the credential service. It tracks one current user per process
// and notifies subscribers whenever that user changes.
type Client struct {
	dir    Directory
	hasher Hasher
	tokens *TokenIssuer

	federator Federator
	cache     CredentialCache
	resets    ResetTokens
	mailer    Mailer
	resetURL  string
	resetTTL  time.Duration

	log logging.Logger
	now func() time.Time

	// notifyMu serializes user changes with their deliveries so
	// subscribers observe changes in the order they happened.
	notifyMu sync.Mutex

	mu      sync.Mutex
	current *User
	subs    map[int]func(*User)
	nextSub int
}

func NewClient(dir Directory, hasher Hasher, tokens *TokenIssuer, opts ...Option) *Client {
	c := &Client{
		dir:    dir,
		hasher: hasher,
		tokens: tokens,
		log:    logging.Nop(),
		now:    time.Now,
		subs:   make(map[int]func(*User)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (c *Client) CurrentUser() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneUser(c.current)
}

// Subscribe registers fn and immediately calls it with the current user
// (nil when signed out). fn is then called after every sign-in and sign-out.
// Calls are serialized. The returned function unregisters fn; calling it
// more than once is harmless.
func (c *Client) Subscribe(fn func(*User)) (unsubscribe func()) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	u := cloneUser(c.current)
	c.mu.Unlock()

	fn(u)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) setCurrent(u *User) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.current = cloneUser(u)
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(*User), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(cloneUser(u))
	}
}

// CreateAccount registers a password account and signs it in.
func (c *Client) CreateAccount(ctx context.Context, email, password string) (*Credential, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	if _, err := c.dir.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailInUse
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acc, err := c.dir.Create(ctx, Account{
		Email:        email,
		PasswordHash: hash,
		Provider:     ProviderPassword,
		CreatedAt:    c.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	c.log.Info(ctx, "account created", "user_id", acc.ID)
	return c.signedIn(ctx, acc)
}

// SignIn verifies an email/password pair.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	acc, err := c.dir.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc.PasswordHash == "" || c.hasher.Compare(acc.PasswordHash, password) != nil {
		return nil, ErrWrongPassword
	}

	return c.signedIn(ctx, acc)
}

// SignInFederated runs the configured provider's consent flow and signs in
// the linked account.
func (c *Client) SignInFederated(ctx context.Context) (*Credential, error) {
	if c.federator == nil {
		return nil, ErrFederationDisabled
	}

	p, err := c.federator.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if p.Email == "" {
		return nil, ErrFederatedNoEmail
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))

	acc, err := c.dir.LinkFederated(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("link %s identity: %w", p.Provider, err)
	}

	return c.signedIn(ctx, acc)
}

// SignOut forgets the cached credential and notifies subscribers.
func (c *Client) SignOut(ctx context.Context) error {
	if c.cache != nil {
		if err := c.cache.Clear(ctx); err != nil {
			return fmt.Errorf("clear credential: %w", err)
		}
	}
	c.setCurrent(nil)
	return nil
}

// SendPasswordReset mails a one-time reset link. Unknown addresses succeed
// without sending anything.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	if c.resets == nil || c.mailer == nil {
		return errors.New("password reset is not configured")
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	acc, err := c.dir.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		c.log.Debug(ctx, "password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token := randomHex(32)
	if err := c.resets.Put(ctx, hashToken(token), acc.ID, c.resetTTL); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	return c.mailer.SendPasswordReset(ctx, acc.Email, c.resetURL+token)
}

// ConfirmPasswordReset consumes token and sets a new password.
func (c *Client) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if c.resets == nil {
		return errors.New("password reset is not configured")
	}
	if strings.TrimSpace(token) == "" {
		return ErrResetTokenInvalid
	}
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	userID, err := c.resets.Consume(ctx, hashToken(token))
	if err != nil {
		return err
	}

	hash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return c.dir.UpdatePassword(ctx, userID, hash)
}

// Restore resumes the session of a cached credential, if it is still
// valid. It is meant to run before anyone subscribes.
func (c *Client) Restore(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}

	token, err := c.cache.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if token == "" {
		return nil
	}

	userID, err := c.tokens.Parse(token)
	if err != nil {
		c.log.Info(ctx, "cached credential rejected", "error", err)
		return c.cache.Clear(ctx)
	}

	acc, err := c.dir.GetByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		c.log.Warn(ctx, "cached credential for missing account", "user_id", userID)
		return c.cache.Clear(ctx)
	}
	if err != nil {
		return err
	}

	u := acc.user()
	c.setCurrent(&u)
	c.log.Debug(ctx, "session restored", "user_id", userID)
	return nil
}

func (c *Client) signedIn(ctx context.Context, acc Account) (*Credential, error) {
	token, expiresAt, err := c.tokens.Issue(acc.ID, c.now())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Store(ctx, token); err != nil {
			// The sign-in itself succeeded; only resume-after-restart is lost.
			c.log.Warn(ctx, "cache credential", "error", err)
		}
	}

	u := acc.user()
	c.setCurrent(&u)

	return &Credential{User: u, Token: token, ExpiresAt: expiresAt}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
