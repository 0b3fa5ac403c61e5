package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialNotFound signals no credential is stored for the user.
	ErrCredentialNotFound = errors.New("link: credential not found")
	// ErrInvalidState indicates the state correlation token is missing or unverifiable.
	ErrInvalidState = errors.New("link: invalid state")
	// ErrMissingCode indicates the provider callback carried no authorization code.
	ErrMissingCode = errors.New("link: authorization code missing")
	// ErrMissingUser indicates caller input lacked a user identity.
	ErrMissingUser = errors.New("link: user id missing")
	// ErrCredentialInactive signals the credential needs manual re-authorization.
	ErrCredentialInactive = errors.New("link: credential inactive")
)

// ExchangeErrorKind classifies failures of the provider token endpoint.
type ExchangeErrorKind int

const (
	// ExchangeRejected means the provider declared the code or refresh token
	// invalid. Not retryable for that attempt.
	ExchangeRejected ExchangeErrorKind = iota
	// ExchangeTransient covers network failures and provider 5xx responses.
	// Eligible for retry on the next sweep.
	ExchangeTransient
	// ExchangeProtocol means the response body did not match the expected shape.
	ExchangeProtocol
)

func (k ExchangeErrorKind) String() string {
	switch k {
	case ExchangeRejected:
		return "rejected"
	case ExchangeTransient:
		return "transient"
	case ExchangeProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// ExchangeError is the typed failure of a token-endpoint call.
type ExchangeError struct {
	Kind ExchangeErrorKind
	// ProviderCode is the OAuth error code from the response body, e.g. "invalid_grant".
	ProviderCode string
	StatusCode   int
	Err          error
}

func (e *ExchangeError) Error() string {
	msg := fmt.Sprintf("exchange %s", e.Kind)
	if e.ProviderCode != "" {
		msg += ": " + e.ProviderCode
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// IsExchangeKind reports whether err is an ExchangeError of the given kind.
func IsExchangeKind(err error, kind ExchangeErrorKind) bool {
	var ee *ExchangeError
	return errors.As(err, &ee) && ee.Kind == kind
}
