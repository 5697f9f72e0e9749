package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/emissionkeeper/internal/identity"
	"github.com/dmitrijs2005/emissionkeeper/internal/session"
)

// sessionAPI is the part of *session.Session the commands use.
type sessionAPI interface {
	Register(ctx context.Context, name, email, password string) (session.AccountRecord, error)
	SignIn(ctx context.Context, email, password string) (*identity.Credential, error)
	SignInWithFederatedProvider(ctx context.Context) (*identity.Credential, error)
	SendPasswordReset(ctx context.Context, email string) error
	SignOut(ctx context.Context) error
	UploadAndRecord(ctx context.Context, data []byte) (string, error)
	ListMyUploads(ctx context.Context) ([]session.UploadRecord, error)
	Snapshot() session.Snapshot
}

// resetConfirmer completes a password reset from the mailed token.
type resetConfirmer interface {
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

// getSimpleText and getPassword are indirections used to facilitate testing.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
)

type App struct {
	sess   sessionAPI
	resets resetConfirmer
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(sess sessionAPI, resets resetConfirmer, in io.Reader, out io.Writer) *App {
	return &App{
		sess:   sess,
		resets: resets,
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run starts the REPL and blocks until the user exits or input ends.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "emissionkeeper CLI (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.reader)
}

func (a *App) isLoggedIn() bool {
	return a.sess.Snapshot().User != nil
}

func (a *App) status() string {
	snap := a.sess.Snapshot()
	switch {
	case snap.User != nil:
		return fmt.Sprintf("(%s)", snap.User.Email)
	case snap.State == session.StateUnknown && snap.LoggedIn:
		return "(restoring)"
	default:
		return ""
	}
}

// report prints err for the user. Session errors carry a ready message.
func (a *App) report(err error) {
	fmt.Fprintln(a.out, "Error:", err.Error())
}
