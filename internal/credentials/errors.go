package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/echov2/echoshell/internal/fault"
)

// ErrNotFound is returned by a SecretStore when no entry exists for a key.
var ErrNotFound = errors.New("secret not found")

// ErrEmptyProvider is wrapped by the SerializationError returned for an
// empty provider identifier.
var ErrEmptyProvider = errors.New("provider is required")

// ErrInvalidProvider is wrapped by the SerializationError returned for a
// provider id that cannot name a store entry.
var ErrInvalidProvider = errors.New("provider may not contain path separators or control characters")

// None of the error messages below include the secret value or the raw
// stored payload.

// StoreAccessError reports that the OS secret store refused or failed an
// operation (locked keychain, denied access, service unavailable).
type StoreAccessError struct {
	Op       string // store | get | delete | migrate
	Provider string
	Backend  string
	Err      error
}

func (e *StoreAccessError) Error() string {
	return fmt.Sprintf("%s credential for %s: %s secret store: %v", e.Op, e.Provider, e.Backend, e.Err)
}

func (e *StoreAccessError) Unwrap() error      { return e.Err }
func (e *StoreAccessError) Class() fault.Class { return fault.Recoverable }

// SerializationError reports that a record could not be encoded.
type SerializationError struct {
	Provider string
	Err      error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("encoding credential for %q: %v", e.Provider, e.Err)
}

func (e *SerializationError) Unwrap() error      { return e.Err }
func (e *SerializationError) Class() fault.Class { return fault.Recoverable }

// DeserializationError reports that a stored record is corrupt.
type DeserializationError struct {
	Provider string
	Err      error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("stored credential for %s is unreadable: %s", e.Provider, describeDecodeError(e.Err))
}

func (e *DeserializationError) Unwrap() error      { return e.Err }
func (e *DeserializationError) Class() fault.Class { return fault.Recoverable }

// describeDecodeError summarises a JSON error without echoing payload bytes.
func describeDecodeError(err error) string {
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntax):
		return fmt.Sprintf("malformed JSON at offset %d", syntax.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case err == nil:
		return "unknown error"
	default:
		return "invalid record"
	}
}
