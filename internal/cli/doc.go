// Package cli provides the interactive emissionkeeper command-line client.
//
// App drives a session.Session from a read-eval-print loop: account
// registration, password and federated sign-in, password reset, sign-out,
// and uploading or listing emission estimate PDFs. The prompt shows who is
// signed in and the session state.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits
// or input ends.
package cli
