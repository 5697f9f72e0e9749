// Package identity is emissionkeeper's credential service: account creation,
// password and federated sign-in, sign-out, password reset and a
// "current user changed" notification.
package identity

import "time"

// Sign-in providers recorded on accounts.
const (
	ProviderPassword = "password"
)

// User is the identity reported to subscribers.
type User struct {
	UID         string
	Email       string
	DisplayName string
	Provider    string
}

// Credential is the handle returned by a successful sign-in.
type Credential struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

// Account is a directory row.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	Provider     string
	CreatedAt    time.Time
}

// Profile is what a federated provider tells us about the person who
// completed its consent flow.
type Profile struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

func (a Account) user() User {
	return User{
		UID:         a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Provider:    a.Provider,
	}
}
