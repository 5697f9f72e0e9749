package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/emissionkeeper/internal/identity"
)

// readFile is a test seam for os.ReadFile.
var readFile = os.ReadFile

// Register prompts for a display name, email and password and creates the
// account. The password is wiped before returning.
func (a *App) Register(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter display name", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	defer WipeBytes(password)

	rec, err := a.sess.Register(ctx, name, email, string(password))
	if err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintf(a.out, "Welcome, %s! Account %s created.\n", rec.DisplayName, rec.Email)
	return nil
}

// Login prompts for an email and password and signs in.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	defer WipeBytes(password)

	cred, err := a.sess.SignIn(ctx, email, string(password))
	if err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintf(a.out, "Signed in as %s\n", cred.User.Email)
	return nil
}

// LoginGoogle runs the federated consent flow.
func (a *App) LoginGoogle(ctx context.Context) error {
	fmt.Fprintln(a.out, "Complete sign-in in your browser...")

	cred, err := a.sess.SignInWithFederatedProvider(ctx)
	if err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintf(a.out, "Signed in as %s\n", cred.User.Email)
	return nil
}

// Reset asks for an email and requests a password reset link for it.
func (a *App) Reset(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	if err := a.sess.SendPasswordReset(ctx, email); err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintln(a.out, "Password reset email sent. Check your inbox.")
	return nil
}

// ResetConfirm completes a reset with the token from the mailed link.
func (a *App) ResetConfirm(ctx context.Context) error {
	token, err := getSimpleText(a.reader, "Enter reset token", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword("Enter new password", a.out)
	if err != nil {
		return err
	}
	defer WipeBytes(password)

	if err := a.resets.ConfirmPasswordReset(ctx, token, string(password)); err != nil {
		switch {
		case errors.Is(err, identity.ErrResetTokenInvalid):
			fmt.Fprintln(a.out, "Error: Reset link is invalid or has expired.")
		case errors.Is(err, identity.ErrWeakPassword):
			fmt.Fprintln(a.out, "Error: Password must be at least 6 characters long.")
		default:
			fmt.Fprintln(a.out, "Error: Failed to reset password.")
		}
		return err
	}

	fmt.Fprintln(a.out, "Password updated. You can now log in.")
	return nil
}

// Logout signs the current user out.
func (a *App) Logout(ctx context.Context) error {
	if err := a.sess.SignOut(ctx); err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

// Upload reads the file at path and stores it for the current user.
func (a *App) Upload(ctx context.Context, path string) error {
	data, err := readFile(path)
	if err != nil {
		fmt.Fprintf(a.out, "Error: cannot read %s: %v\n", path, err)
		return err
	}

	url, err := a.sess.UploadAndRecord(ctx, data)
	if err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintf(a.out, "PDF uploaded successfully: %s\n", url)
	return nil
}

// List prints the current user's uploads.
func (a *App) List(ctx context.Context) error {
	uploads, err := a.sess.ListMyUploads(ctx)
	if err != nil {
		a.report(err)
		return err
	}

	if len(uploads) == 0 {
		fmt.Fprintln(a.out, "No uploads yet.")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UPLOADED\tURL")
	for _, u := range uploads {
		fmt.Fprintf(w, "%s\t%s\n", u.CreatedAt.UTC().Format(time.DateTime), u.URL)
	}
	return w.Flush()
}

// Status prints the session state.
func (a *App) Status(context.Context) error {
	snap := a.sess.Snapshot()

	fmt.Fprintf(a.out, "State: %s\n", snap.State)
	if snap.User != nil {
		fmt.Fprintf(a.out, "User: %s (%s)\n", snap.User.Email, snap.User.UID)
	}
	if snap.LastError != "" {
		fmt.Fprintf(a.out, "Last error: %s\n", snap.LastError)
	}
	return nil
}
