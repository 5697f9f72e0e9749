package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/emissionkeeper/internal/identity"
	"github.com/dmitrijs2005/emissionkeeper/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	snap session.Snapshot
	err  error

	gotName, gotEmail, gotPassword string
	gotData                        []byte
	uploads                        []session.UploadRecord
	resetEmails                    []string
}

func (f *fakeSession) Register(_ context.Context, name, email, password string) (session.AccountRecord, error) {
	f.gotName, f.gotEmail, f.gotPassword = name, email, password
	if f.err != nil {
		return session.AccountRecord{}, f.err
	}
	return session.AccountRecord{DisplayName: name, Email: email, UserID: "u1"}, nil
}

func (f *fakeSession) SignIn(_ context.Context, email, password string) (*identity.Credential, error) {
	f.gotEmail, f.gotPassword = email, password
	if f.err != nil {
		return nil, f.err
	}
	return &identity.Credential{User: identity.User{UID: "u1", Email: email}}, nil
}

func (f *fakeSession) SignInWithFederatedProvider(context.Context) (*identity.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &identity.Credential{User: identity.User{UID: "g1", Email: "g@example.com"}}, nil
}

func (f *fakeSession) SendPasswordReset(_ context.Context, email string) error {
	f.resetEmails = append(f.resetEmails, email)
	return f.err
}

func (f *fakeSession) SignOut(context.Context) error { return f.err }

func (f *fakeSession) UploadAndRecord(_ context.Context, data []byte) (string, error) {
	f.gotData = data
	if f.err != nil {
		return "", f.err
	}
	return "https://files.example.com/a.pdf", nil
}

func (f *fakeSession) ListMyUploads(context.Context) ([]session.UploadRecord, error) {
	return f.uploads, f.err
}

func (f *fakeSession) Snapshot() session.Snapshot { return f.snap }

type fakeResets struct {
	token, password string
	err             error
}

func (f *fakeResets) ConfirmPasswordReset(_ context.Context, token, pw string) error {
	f.token, f.password = token, pw
	return f.err
}

func newTestApp(t *testing.T, input string, sess *fakeSession, resets *fakeResets) (*App, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	a := NewApp(sess, resets, strings.NewReader(input), out)

	origPW := getPassword
	getPassword = func(string, io.Writer) ([]byte, error) { return []byte("secret1"), nil }
	t.Cleanup(func() { getPassword = origPW })
	return a, out
}

var errWrongPassword = &session.Error{
	Op:      session.OpSignIn,
	Kind:    session.KindWrongPassword,
	Message: session.MsgWrongPassword,
}

func TestRegister(t *testing.T) {
	sess := &fakeSession{}
	a, out := newTestApp(t, "Alice\nalice@x.com\n", sess, nil)

	require.NoError(t, a.Register(context.Background()))
	assert.Equal(t, "Alice", sess.gotName)
	assert.Equal(t, "alice@x.com", sess.gotEmail)
	assert.Equal(t, "secret1", sess.gotPassword)
	assert.Contains(t, out.String(), "Welcome, Alice! Account alice@x.com created.")
}

func TestRegister_InputError(t *testing.T) {
	sess := &fakeSession{}
	a, _ := newTestApp(t, "", sess, nil)

	require.Error(t, a.Register(context.Background()))
	assert.Empty(t, sess.gotName)
}

func TestLogin(t *testing.T) {
	sess := &fakeSession{}
	a, out := newTestApp(t, "alice@x.com\n", sess, nil)

	require.NoError(t, a.Login(context.Background()))
	assert.Contains(t, out.String(), "Signed in as alice@x.com")
}

func TestLogin_ReportsSessionMessage(t *testing.T) {
	sess := &fakeSession{err: errWrongPassword}
	a, out := newTestApp(t, "alice@x.com\n", sess, nil)

	err := a.Login(context.Background())
	require.ErrorIs(t, err, errWrongPassword)
	assert.Contains(t, out.String(), "Error: "+session.MsgWrongPassword)
}

func TestLoginGoogle(t *testing.T) {
	a, out := newTestApp(t, "", &fakeSession{}, nil)
	require.NoError(t, a.LoginGoogle(context.Background()))
	assert.Contains(t, out.String(), "Signed in as g@example.com")

	a, out = newTestApp(t, "", &fakeSession{err: &session.Error{Message: session.MsgFederatedFailed}}, nil)
	require.Error(t, a.LoginGoogle(context.Background()))
	assert.Contains(t, out.String(), session.MsgFederatedFailed)
}

func TestReset(t *testing.T) {
	sess := &fakeSession{}
	a, out := newTestApp(t, "alice@x.com\n", sess, nil)

	require.NoError(t, a.Reset(context.Background()))
	assert.Equal(t, []string{"alice@x.com"}, sess.resetEmails)
	assert.Contains(t, out.String(), "Password reset email sent")
}

func TestResetConfirm(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ok", nil, "Password updated."},
		{"bad token", identity.ErrResetTokenInvalid, "Reset link is invalid or has expired."},
		{"weak", identity.ErrWeakPassword, "Password must be at least 6 characters long."},
		{"other", errors.New("db down"), "Failed to reset password."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resets := &fakeResets{err: tt.err}
			a, out := newTestApp(t, "tok123\n", &fakeSession{}, resets)

			err := a.ResetConfirm(context.Background())
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, "tok123", resets.token)
			assert.Equal(t, "secret1", resets.password)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestLogout(t *testing.T) {
	a, out := newTestApp(t, "", &fakeSession{}, nil)
	require.NoError(t, a.Logout(context.Background()))
	assert.Contains(t, out.String(), "Logged out.")

	a, out = newTestApp(t, "", &fakeSession{err: &session.Error{Message: session.MsgSignOutFailed}}, nil)
	require.Error(t, a.Logout(context.Background()))
	assert.Contains(t, out.String(), session.MsgSignOutFailed)
}

func TestUpload(t *testing.T) {
	orig := readFile
	t.Cleanup(func() { readFile = orig })
	readFile = func(name string) ([]byte, error) {
		if name == "report.pdf" {
			return []byte("%PDF"), nil
		}
		return nil, errors.New("no such file")
	}

	sess := &fakeSession{}
	a, out := newTestApp(t, "", sess, nil)

	require.NoError(t, a.Upload(context.Background(), "report.pdf"))
	assert.Equal(t, []byte("%PDF"), sess.gotData)
	assert.Contains(t, out.String(), "PDF uploaded successfully: https://files.example.com/a.pdf")

	sess.gotData = nil
	require.Error(t, a.Upload(context.Background(), "missing.pdf"))
	assert.Nil(t, sess.gotData)
	assert.Contains(t, out.String(), "cannot read missing.pdf")
}

func TestList(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	sess := &fakeSession{uploads: []session.UploadRecord{{URL: "https://f/a.pdf", CreatedAt: at}}}
	a, out := newTestApp(t, "", sess, nil)

	require.NoError(t, a.List(context.Background()))
	assert.Contains(t, out.String(), "UPLOADED")
	assert.Contains(t, out.String(), "2025-03-14 09:26:53  https://f/a.pdf")

	sess.uploads = nil
	out.Reset()
	require.NoError(t, a.List(context.Background()))
	assert.Equal(t, "No uploads yet.\n", out.String())
}

func TestStatus(t *testing.T) {
	sess := &fakeSession{snap: session.Snapshot{
		State:     session.StateAuthenticated,
		User:      &identity.User{UID: "u1", Email: "a@b.co"},
		LoggedIn:  true,
		LastError: session.MsgListFailed,
	}}
	a, out := newTestApp(t, "", sess, nil)

	require.NoError(t, a.Status(context.Background()))
	assert.Equal(t, "State: AUTHENTICATED\nUser: a@b.co (u1)\nLast error: Failed to fetch PDFs.\n", out.String())
	assert.Equal(t, "(a@b.co)", a.status())
	assert.True(t, a.isLoggedIn())

	sess.snap = session.Snapshot{State: session.StateUnknown, LoggedIn: true}
	assert.Equal(t, "(restoring)", a.status())
	assert.False(t, a.isLoggedIn())

	sess.snap = session.Snapshot{State: session.StateAnonymous}
	assert.Empty(t, a.status())
}

func TestRun(t *testing.T) {
	capturePrints(t)
	sess := &fakeSession{snap: session.Snapshot{State: session.StateAnonymous}}
	a, out := newTestApp(t, "status\nexit\n", sess, nil)

	a.Run(context.Background())
	assert.Contains(t, out.String(), "emissionkeeper CLI")
	assert.Contains(t, out.String(), "State: ANONYMOUS")
}
