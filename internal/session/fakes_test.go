package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/emissionkeeper/internal/identity"
)

type fakeAccount struct {
	uid      string
	password string
}

// fakeCredentials mimics identity.Client: serialized deliveries, the
// current user delivered on Subscribe.
type fakeCredentials struct {
	notifyMu sync.Mutex

	mu           sync.Mutex
	accounts     map[string]fakeAccount
	current      *identity.User
	subs         map[int]func(*identity.User)
	nextSub      int
	calls        int
	resets       []string
	unsubscribed int
	// holdInitial skips the delivery on Subscribe.
	holdInitial bool
	// afterSignOut runs once the sign-out has been delivered.
	afterSignOut func()

	createErr  error
	signInErr  error
	fedErr     error
	signOutErr error
	resetErr   error
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{
		accounts: make(map[string]fakeAccount),
		subs:     make(map[int]func(*identity.User)),
	}
}

func (f *fakeCredentials) count() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeCredentials) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCredentials) Subscribe(fn func(*identity.User)) func() {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	u := cloneUser(f.current)
	hold := f.holdInitial
	f.mu.Unlock()

	if !hold {
		fn(u)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.unsubscribed++
			f.mu.Unlock()
		})
	}
}

func (f *fakeCredentials) setCurrent(u *identity.User) {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	f.mu.Lock()
	f.current = cloneUser(u)
	ids := make([]int, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(*identity.User), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.subs[id])
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(cloneUser(u))
	}
}

func (f *fakeCredentials) signedIn(email, uid, provider string) *identity.Credential {
	u := identity.User{UID: uid, Email: email, Provider: provider}
	f.setCurrent(&u)
	return &identity.Credential{User: u, Token: "token-" + uid}
}

func (f *fakeCredentials) CreateAccount(_ context.Context, email, password string) (*identity.Credential, error) {
	f.count()
	if f.createErr != nil {
		return nil, f.createErr
	}

	f.mu.Lock()
	if _, ok := f.accounts[email]; ok {
		f.mu.Unlock()
		return nil, identity.ErrEmailInUse
	}
	uid := fmt.Sprintf("uid-%d", len(f.accounts)+1)
	f.accounts[email] = fakeAccount{uid: uid, password: password}
	f.mu.Unlock()

	return f.signedIn(email, uid, identity.ProviderPassword), nil
}

func (f *fakeCredentials) SignIn(_ context.Context, email, password string) (*identity.Credential, error) {
	f.count()
	if f.signInErr != nil {
		return nil, f.signInErr
	}

	f.mu.Lock()
	acc, ok := f.accounts[email]
	f.mu.Unlock()
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	if acc.password != password {
		return nil, identity.ErrWrongPassword
	}

	return f.signedIn(email, acc.uid, identity.ProviderPassword), nil
}

func (f *fakeCredentials) SignInFederated(context.Context) (*identity.Credential, error) {
	f.count()
	if f.fedErr != nil {
		return nil, f.fedErr
	}
	return f.signedIn("fed@example.com", "uid-fed", "google"), nil
}

func (f *fakeCredentials) SignOut(context.Context) error {
	f.count()
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.setCurrent(nil)
	if f.afterSignOut != nil {
		f.afterSignOut()
	}
	return nil
}

func (f *fakeCredentials) SendPasswordReset(_ context.Context, email string) error {
	f.count()
	if f.resetErr != nil {
		return f.resetErr
	}
	f.mu.Lock()
	f.resets = append(f.resets, email)
	f.mu.Unlock()
	return nil
}

type fakeObjects struct {
	mu         sync.Mutex
	objects    map[string][]byte
	calls      int
	storeErr   error
	resolveErr error
	// base prefixes resolved URLs; empty means https://files.example.com/.
	base string
	// onStore runs after a successful Store.
	onStore func()
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Store(_ context.Context, path string, data []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	if f.storeErr != nil {
		f.mu.Unlock()
		return "", f.storeErr
	}
	f.objects[path] = append([]byte(nil), data...)
	hook := f.onStore
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return path, nil
}

func (f *fakeObjects) ResolveURL(_ context.Context, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	if _, ok := f.objects[ref]; !ok {
		return "", errors.New("no such object")
	}
	base := f.base
	if base == "" {
		base = "https://files.example.com/"
	}
	return base + ref, nil
}

func (f *fakeObjects) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDocuments struct {
	mu       sync.Mutex
	colls    map[string][]map[string]any
	ids      map[string][]string
	calls    int
	nextID   int
	writeErr error
	listErr  error
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{
		colls: make(map[string][]map[string]any),
		ids:   make(map[string][]string),
	}
}

func (f *fakeDocuments) WriteDocument(_ context.Context, coll, id string, data map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.writeErr != nil {
		return "", f.writeErr
	}
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("doc-%d", f.nextID)
	}
	cp := make(map[string]any, len(data)+1)
	for k, v := range data {
		cp[k] = v
	}
	cp["_id"] = id
	f.colls[coll] = append(f.colls[coll], cp)
	f.ids[coll] = append(f.ids[coll], id)
	return id, nil
}

func (f *fakeDocuments) ListDocuments(_ context.Context, coll string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]map[string]any(nil), f.colls[coll]...), nil
}

func (f *fakeDocuments) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDocuments) Docs(coll string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.colls[coll]...)
}

// fakeHint stores nil for an absent key.
type fakeHint struct {
	mu       sync.Mutex
	value    *bool
	writes   int
	loadErr  error
	storeErr error
	clearErr error
}

func (f *fakeHint) Load(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return false, f.loadErr
	}
	return f.value != nil && *f.value, nil
}

func (f *fakeHint) Store(_ context.Context, v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.storeErr != nil {
		return f.storeErr
	}
	f.value = &v
	return nil
}

func (f *fakeHint) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.clearErr != nil {
		return f.clearErr
	}
	f.value = nil
	return nil
}

func (f *fakeHint) Get() bool {
	v, _ := f.Load(context.Background())
	return v
}

func (f *fakeHint) Present() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value != nil
}

func (f *fakeHint) set(v bool) {
	f.mu.Lock()
	f.value = &v
	f.mu.Unlock()
}
