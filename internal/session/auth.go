package session

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/emissionkeeper/internal/identity"
)

const usersCollection = "users"

// AccountRecord is the profile document written once at registration.
type AccountRecord struct {
	DisplayName string
	Email       string
	UserID      string
}

func (r AccountRecord) document() map[string]any {
	return map[string]any{
		"displayName": r.DisplayName,
		"email":       r.Email,
		"userId":      r.UserID,
	}
}

// Register creates a password account and writes its profile record. If the
// record cannot be written the account still exists.
func (s *Session) Register(ctx context.Context, name, email, password string) (AccountRecord, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)

	if blank(name, email, password) {
		return AccountRecord{}, s.fail(ctx, OpRegister, KindInvalidInput, MsgRegisterFieldsRequired, nil)
	}
	if !validEmail(email) {
		return AccountRecord{}, s.fail(ctx, OpRegister, KindInvalidEmail, MsgInvalidEmailFormat, nil)
	}
	if len(password) < minPasswordLength {
		return AccountRecord{}, s.fail(ctx, OpRegister, KindWeakPassword, MsgPasswordTooShort, nil)
	}

	cred, err := s.creds.CreateAccount(ctx, email, password)
	if err != nil {
		kind, msg := classify(err, registerCodes, MsgRegisterFailed)
		return AccountRecord{}, s.fail(ctx, OpRegister, kind, msg, err)
	}

	rec := AccountRecord{DisplayName: name, Email: email, UserID: cred.User.UID}
	if _, err := s.docs.WriteDocument(ctx, usersCollection, rec.UserID, rec.document()); err != nil {
		s.log.Warn(ctx, "account created without profile record", "user_id", rec.UserID)
		return AccountRecord{}, s.fail(ctx, OpRegister, KindFailed, MsgRegisterFailed, err)
	}

	s.succeed()
	s.log.Info(ctx, "account registered", "user_id", rec.UserID)
	return rec, nil
}

// SignIn verifies an email/password pair. The session itself changes only
// when the credential service reports the new user.
func (s *Session) SignIn(ctx context.Context, email, password string) (*identity.Credential, error) {
	email = strings.TrimSpace(email)

	if blank(email, password) {
		return nil, s.fail(ctx, OpSignIn, KindInvalidInput, MsgSignInFieldsRequired, nil)
	}
	if !validEmail(email) {
		return nil, s.fail(ctx, OpSignIn, KindInvalidEmail, MsgInvalidEmailFormat, nil)
	}

	cred, err := s.creds.SignIn(ctx, email, password)
	if err != nil {
		kind, msg := classify(err, signInCodes, MsgSignInFailed)
		return nil, s.fail(ctx, OpSignIn, kind, msg, err)
	}

	s.succeed()
	return cred, nil
}

// SignInWithFederatedProvider runs the external consent flow. Every failure,
// cancellation included, is reported as KindFederated.
func (s *Session) SignInWithFederatedProvider(ctx context.Context) (*identity.Credential, error) {
	cred, err := s.creds.SignInFederated(ctx)
	if err != nil {
		return nil, s.fail(ctx, OpSignInFederated, KindFederated, MsgFederatedFailed, err)
	}

	s.succeed()
	s.log.Info(ctx, "federated sign-in", "user_id", cred.User.UID, "provider", cred.User.Provider)
	return cred, nil
}

// SendPasswordReset asks the credential service to mail a reset link. Every
// call is an independent request.
func (s *Session) SendPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return s.fail(ctx, OpSendPasswordReset, KindInvalidInput, MsgResetEmailRequired, nil)
	}

	if err := s.creds.SendPasswordReset(ctx, email); err != nil {
		return s.fail(ctx, OpSendPasswordReset, KindFailed, MsgResetFailed, err)
	}

	s.succeed()
	return nil
}

// SignOut ends the credential and clears the durable hint. On failure the
// hint is left as it was. The hint is removed rather than set to false; an
// absent hint reads as false.
func (s *Session) SignOut(ctx context.Context) error {
	if err := s.creds.SignOut(ctx); err != nil {
		return s.fail(ctx, OpSignOut, KindFailed, MsgSignOutFailed, err)
	}

	s.clearHint(ctx)
	s.succeed()
	return nil
}

// clearHint removes the hint unless a sign-in notification has already
// landed after the sign-out, in which case the stored true is current.
func (s *Session) clearHint(ctx context.Context) {
	s.hintMu.Lock()
	defer s.hintMu.Unlock()

	s.mu.Lock()
	loggedIn := s.loggedIn
	s.mu.Unlock()
	if loggedIn {
		s.log.Debug(ctx, "login hint kept, signed in again")
		return
	}

	if err := s.hint.Clear(ctx); err != nil {
		s.log.Warn(ctx, "clear login hint", "error", err)
	}
}
