package session

import (
	"errors"

	"github.com/dmitrijs2005/emissionkeeper/internal/identity"
)

// Kind classifies a failed operation.
type Kind int

const (
	// KindFailed is the per-operation fallback for anything unclassified.
	KindFailed Kind = iota
	KindInvalidInput
	KindInvalidEmail
	KindUserNotFound
	KindWrongPassword
	KindEmailInUse
	KindWeakPassword
	KindFederated
	KindNoUser
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid-input"
	case KindInvalidEmail:
		return "invalid-email"
	case KindUserNotFound:
		return "user-not-found"
	case KindWrongPassword:
		return "wrong-password"
	case KindEmailInUse:
		return "email-already-in-use"
	case KindWeakPassword:
		return "weak-password"
	case KindFederated:
		return "federated-failed"
	case KindNoUser:
		return "no-user"
	default:
		return "failed"
	}
}

// Operation names carried in Error.Op.
const (
	OpRegister          = "register"
	OpSignIn            = "signIn"
	OpSignInFederated   = "signInWithFederatedProvider"
	OpSendPasswordReset = "sendPasswordReset"
	OpSignOut           = "signOut"
	OpUploadAndRecord   = "uploadAndRecord"
	OpListMyUploads     = "listMyUploads"
)

// User-facing messages.
const (
	MsgRegisterFieldsRequired = "All fields are required."
	MsgSignInFieldsRequired   = "Email and password are required."
	MsgResetEmailRequired     = "Please enter your email to reset password."
	MsgInvalidEmailFormat     = "Invalid email format."
	MsgPasswordTooShort       = "Password must be at least 6 characters long."

	MsgInvalidEmail  = "Invalid email address."
	MsgUserNotFound  = "No account found with this email."
	MsgWrongPassword = "Incorrect password. Please try again."
	MsgEmailInUse    = "This email is already registered."
	MsgWeakPassword  = "Password is too weak."

	MsgRegisterFailed  = "Failed to register. Please try again."
	MsgSignInFailed    = "Failed to sign in. Please check your credentials and try again."
	MsgFederatedFailed = "Federated sign-in failed. Please try again."
	MsgResetFailed     = "Failed to send password reset email."
	MsgSignOutFailed   = "Failed to log out."
	MsgNoUser          = "No user is logged in."
	MsgUploadFailed    = "Failed to upload PDF."
	MsgListFailed      = "Failed to fetch PDFs."
)

// Error is returned by every Session operation that fails. Message is safe
// to show to the user; Err is the underlying cause, if any.
type Error struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err, or KindFailed when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFailed
}

type providerCode struct {
	err  error
	kind Kind
	msg  string
}

var (
	codeInvalidEmail  = providerCode{identity.ErrInvalidEmail, KindInvalidEmail, MsgInvalidEmail}
	codeUserNotFound  = providerCode{identity.ErrUserNotFound, KindUserNotFound, MsgUserNotFound}
	codeWrongPassword = providerCode{identity.ErrWrongPassword, KindWrongPassword, MsgWrongPassword}
	codeEmailInUse    = providerCode{identity.ErrEmailInUse, KindEmailInUse, MsgEmailInUse}
	codeWeakPassword  = providerCode{identity.ErrWeakPassword, KindWeakPassword, MsgWeakPassword}

	registerCodes = []providerCode{codeEmailInUse, codeInvalidEmail, codeWeakPassword}
	signInCodes   = []providerCode{codeInvalidEmail, codeUserNotFound, codeWrongPassword}
)

// classify maps a provider error onto one of codes, falling back to
// KindFailed with fallback as the message.
func classify(err error, codes []providerCode, fallback string) (Kind, string) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.kind, c.msg
		}
	}
	return KindFailed, fallback
}
