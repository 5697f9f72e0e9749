package identity

import (
	"context"
	"strconv"
	"sync"
)

type memDirectory struct {
	mu       sync.Mutex
	accounts map[string]Account
	links    map[string]string
	seq      int
	err      error
}

func newMemDirectory() *memDirectory {
	return &memDirectory{accounts: map[string]Account{}, links: map[string]string{}}
}

func (d *memDirectory) Create(_ context.Context, acc Account) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return Account{}, d.err
	}
	for _, a := range d.accounts {
		if a.Email == acc.Email {
			return Account{}, ErrEmailInUse
		}
	}
	d.seq++
	acc.ID = "u-" + strconv.Itoa(d.seq)
	d.accounts[acc.ID] = acc
	return acc, nil
}

func (d *memDirectory) GetByEmail(_ context.Context, email string) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return Account{}, d.err
	}
	for _, a := range d.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return Account{}, ErrUserNotFound
}

func (d *memDirectory) GetByID(_ context.Context, id string) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return Account{}, d.err
	}
	a, ok := d.accounts[id]
	if !ok {
		return Account{}, ErrUserNotFound
	}
	return a, nil
}

func (d *memDirectory) UpdatePassword(_ context.Context, id, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[id]
	if !ok {
		return ErrUserNotFound
	}
	a.PasswordHash = hash
	d.accounts[id] = a
	return nil
}

func (d *memDirectory) LinkFederated(_ context.Context, p Profile) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := p.Provider + "|" + p.Subject
	if id, ok := d.links[key]; ok {
		return d.accounts[id], nil
	}
	for id, a := range d.accounts {
		if a.Email == p.Email {
			d.links[key] = id
			return a, nil
		}
	}
	d.seq++
	acc := Account{ID: "u-" + strconv.Itoa(d.seq), Email: p.Email, DisplayName: p.Name, Provider: p.Provider}
	d.accounts[acc.ID] = acc
	d.links[key] = acc.ID
	return acc, nil
}

type memCache struct {
	mu       sync.Mutex
	token    string
	clearErr error
}

func (c *memCache) Load(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

func (c *memCache) Store(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	return nil
}

func (c *memCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clearErr != nil {
		return c.clearErr
	}
	c.token = ""
	return nil
}

type sentMail struct{ to, link string }

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, link})
	return nil
}

type stubFederator struct {
	profile Profile
	err     error
}

func (f stubFederator) Authenticate(context.Context) (Profile, error) {
	return f.profile, f.err
}
