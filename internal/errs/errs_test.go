package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWrapsNilAsNil(t *testing.T) {
	require.NoError(t, New(KindTransient, "op", nil))
}

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := Transient("gapfill.fetchHeaders", errors.New("connection reset"))
	wrapped := errWrap{base}
	require.Equal(t, KindTransient, KindOf(wrapped))
}

func TestKindOfDefaultsToUnknown(t *testing.T) {
	require.Equal(t, KindUnknown, KindOf(errors.New("plain error")))
}

func TestIsUniqueViolationDetectsWrappedSentinel(t *testing.T) {
	err := errWrap{ErrUniqueViolation}
	require.True(t, IsUniqueViolation(err))
	require.False(t, IsUniqueViolation(errors.New("something else")))
}

func TestErrorMessageIncludesOpAndKind(t *testing.T) {
	err := SchemaValidation("materialise.decodeCommand", errors.New("bad json"))
	require.Contains(t, err.Error(), "materialise.decodeCommand")
	require.Contains(t, err.Error(), "schema-validation")
	require.Contains(t, err.Error(), "bad json")
}

// errWrap is a minimal errors.Wrapper used to exercise errors.As/errors.Is
// traversal through an intermediate wrapper, the same shape fmt.Errorf's
// %w produces.
type errWrap struct{ err error }

func (e errWrap) Error() string { return e.err.Error() }
func (e errWrap) Unwrap() error { return e.err }
