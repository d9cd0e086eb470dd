// Package errs defines the error-kind taxonomy used to decide retry, logging
// and persistence behaviour across the ingestion pipelines.
package errs

import "errors"

// Kind classifies an error for the purposes of retry policy and operator
// visibility. See spec §7.
type Kind int

const (
	// KindUnknown is the zero value; treated like Transient by callers that
	// don't special-case it.
	KindUnknown Kind = iota
	// KindTransient covers network/IO errors worth retrying with backoff.
	KindTransient
	// KindSchemaValidation covers malformed payloads: log and skip, and
	// record a SyncError if encountered on the API path.
	KindSchemaValidation
	// KindPersistenceConflict covers database constraint violations. A
	// unique-hash violation on Block is idempotent success; anything else
	// rolls back.
	KindPersistenceConflict
	// KindFatalConfig covers missing/invalid configuration: abort startup.
	KindFatalConfig
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindSchemaValidation:
		return "schema-validation"
	case KindPersistenceConflict:
		return "persistence-conflict"
	case KindFatalConfig:
		return "fatal-config"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind so callers can branch on
// classification with errors.As instead of string matching or type switches
// on driver-specific error types.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "gapfill.fetchHeaders"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind and operation name. Returns nil if err
// is nil, so it composes with the usual `if err := f(); err != nil` idiom.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transient is a convenience constructor for the common retry case.
func Transient(op string, err error) error { return New(KindTransient, op, err) }

// SchemaValidation is a convenience constructor for malformed-payload errors.
func SchemaValidation(op string, err error) error { return New(KindSchemaValidation, op, err) }

// FatalConfig is a convenience constructor for startup configuration errors.
func FatalConfig(op string, err error) error { return New(KindFatalConfig, op, err) }

// KindOf returns the Kind carried by err, walking the Unwrap chain, or
// KindUnknown if err (or none of its wrapped causes) is an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ErrUniqueViolation is the sentinel for a unique-constraint violation.
// Persistence backends (internal/storage) translate their
// driver-specific conflict errors to this sentinel so the Materialiser can
// treat a duplicate Block.hash insert as idempotent success without
// importing a database driver package.
var ErrUniqueViolation = errors.New("unique constraint violation")

// IsUniqueViolation reports whether err is, or wraps, ErrUniqueViolation.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}
