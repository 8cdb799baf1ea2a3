// Package apperrors provides chainable error values shared by every package in
// the module. An error created from another error keeps the parent reachable
// through errors.Is, so packages can declare a root error and derive the
// specific conditions callers branch on.
package apperrors

// Error is the application error interface. Every derivation method returns a
// new value; the receiver is never mutated.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // derives a new error kind from the current one
	Msg(msg string) Error                  // same kind, new message, original kept in the chain
	MsgErr(msg string, err ...error) Error // same kind, new message, extra causes attached
	Err(err ...error) Error                // same kind and message, extra causes attached
	SetStatusCode(int) Error               // attaches an HTTP status code
	StatusCode() int                       // returns the attached status code, 0 if none
	Causes() []error                       // returns attached causes in order
}
