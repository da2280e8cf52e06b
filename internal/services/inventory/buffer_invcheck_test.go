//go:build invcheck

package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillPanic runs FetchSized and returns the value it panicked with.
func fillPanic(t *testing.T, src *nativeString) (recovered interface{}) {
	t.Helper()
	defer func() { recovered = recover() }()
	_, _ = FetchSized(src.query, src.fill, DecodeCString)
	return nil
}

func TestFetchSized_FillRefusedPanics(t *testing.T) {
	src := &nativeString{value: EncodeCString("Sword"), refuseFill: true}

	v := fillPanic(t, src)
	require.NotNil(t, v, "FetchSized returned instead of panicking")
	err, ok := v.(*Error)
	require.True(t, ok, "panic value %T is not *Error", v)
	assert.Equal(t, KindFillFailed, err.Kind)
	assert.ErrorIs(t, err, ErrFillFailed)
}

func TestFetchSized_FillSizeMismatchPanics(t *testing.T) {
	for _, n := range []uint32{0, 3, 7} {
		size := n
		src := &nativeString{value: EncodeCString("Sword"), fillSize: &size}

		v := fillPanic(t, src)
		require.NotNil(t, v, "fill reported %d elements", n)
		err, ok := v.(*Error)
		require.True(t, ok)
		assert.Equal(t, KindFillFailed, err.Kind)
	}
}

func TestFetchSized_SizeQueryFailureDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		_, err := FetchSized(
			func() (uint32, bool) { return 0, false },
			func(dst []byte) (uint32, bool) { return 0, true },
			DecodeCString,
		)
		assert.ErrorIs(t, err, ErrSizeQueryFailed)
	})
}
