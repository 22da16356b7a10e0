package core

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. Callers branch on the kind, never on message text.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidRequest
	KindInsufficientStock
	KindAlreadyConfirmed
	KindAlreadyCancelled
	KindInvalidState
	KindForbidden
	KindCodeSpaceExhausted
	KindConflict
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrInternal           = errors.New("internal error")
	ErrNotFound           = errors.New("not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrAlreadyConfirmed   = errors.New("order already confirmed")
	ErrAlreadyCancelled   = errors.New("order was cancelled")
	ErrInvalidState       = errors.New("invalid order state")
	ErrForbidden          = errors.New("forbidden")
	ErrCodeSpaceExhausted = errors.New("could not generate a unique order code")
	ErrConflict           = errors.New("concurrent update conflict")
)

var kindNames = map[Kind]string{
	KindInternal:           "INTERNAL_ERROR",
	KindNotFound:           "NOT_FOUND",
	KindInvalidRequest:     "INVALID_REQUEST",
	KindInsufficientStock:  "INSUFFICIENT_STOCK",
	KindAlreadyConfirmed:   "ALREADY_CONFIRMED",
	KindAlreadyCancelled:   "ALREADY_CANCELLED",
	KindInvalidState:       "INVALID_STATE",
	KindForbidden:          "FORBIDDEN",
	KindCodeSpaceExhausted: "CODE_SPACE_EXHAUSTED",
	KindConflict:           "CONFLICT",
}

// String returns the machine-readable code used in API error bodies.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInternal]
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindInvalidRequest:
		return ErrInvalidRequest
	case KindInsufficientStock:
		return ErrInsufficientStock
	case KindAlreadyConfirmed:
		return ErrAlreadyConfirmed
	case KindAlreadyCancelled:
		return ErrAlreadyCancelled
	case KindInvalidState:
		return ErrInvalidState
	case KindForbidden:
		return ErrForbidden
	case KindCodeSpaceExhausted:
		return ErrCodeSpaceExhausted
	case KindConflict:
		return ErrConflict
	default:
		return ErrInternal
	}
}

// Shortfall describes which line could not be covered by stock.
type Shortfall struct {
	DrugID    int64  `json:"drug_id"`
	VariantID *int64 `json:"drug_variant_id,omitempty"`
	Available int    `json:"available"`
	Required  int    `json:"required"`
}

// Error is the typed error returned by the engine and its stores.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Shortfall *Shortfall // set for KindInsufficientStock
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = e.Kind.sentinel().Error()
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return target == e.Kind.sentinel()
}

// Retryable reports whether repeating the whole operation may succeed.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindConflict
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and operation to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound reports a missing entity.
func NotFound(entity string, id any) *Error {
	return Errorf(KindNotFound, "%s %v not found", entity, id)
}

// Forbidden reports a denied action.
func Forbidden(format string, args ...any) *Error {
	return Errorf(KindForbidden, format, args...)
}

// InsufficientStock reports that a line cannot be covered by the row's quantity.
func InsufficientStock(drugID int64, variantID *int64, available, required int) *Error {
	e := Errorf(KindInsufficientStock,
		"insufficient stock for drug %d: available %d, required %d", drugID, available, required)
	e.Shortfall = &Shortfall{DrugID: drugID, VariantID: variantID, Available: available, Required: required}
	return e
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is a transient concurrency failure.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}
