package market

import "fmt"

type ErrorKind string

const (
	KindUnauthenticated   ErrorKind = "unauthenticated"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindMarketNotFound    ErrorKind = "market_not_found"
	KindInvalidOutcome    ErrorKind = "invalid_outcome"
	KindInvalidOutcomeSet ErrorKind = "invalid_outcome_set"
	KindInvalidOddsShape  ErrorKind = "invalid_odds_shape"
	KindAlreadyResolved   ErrorKind = "already_resolved"
	KindMarketNotActive   ErrorKind = "market_not_active"
)

// Error é o erro de validação de uma operação. Detail carrega o valor ofensor.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// Is permite errors.Is(err, ErrUnauthorized) independente do Detail
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrMarketNotFound    = &Error{Kind: KindMarketNotFound}
	ErrInvalidOutcome    = &Error{Kind: KindInvalidOutcome}
	ErrInvalidOutcomeSet = &Error{Kind: KindInvalidOutcomeSet}
	ErrInvalidOddsShape  = &Error{Kind: KindInvalidOddsShape}
	ErrAlreadyResolved   = &Error{Kind: KindAlreadyResolved}
	ErrMarketNotActive   = &Error{Kind: KindMarketNotActive}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
