package inventory

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"
)

// FetchSized runs the native two-phase protocol: ask for the element count,
// allocate exactly that many elements, ask again to fill, then decode.
//
// query is called with no destination and reports the required count.
// fill receives the allocated buffer and reports how many elements it wrote.
// A fill that fails or writes a different count than query reported breaks
// the protocol contract; builds tagged invcheck panic on it.
func FetchSized[E, T any](query func() (uint32, bool), fill func(dst []E) (uint32, bool), decode func(src []E) (T, error)) (T, error) {
	var zero T

	size, ok := query()
	if !ok {
		return zero, newError(KindSizeQueryFailed, "query size", "native side refused the size query", nil)
	}

	buf := make([]E, size)
	if size > 0 {
		n, ok := fill(buf)
		if !ok || n != size {
			err := newError(KindFillFailed, "fill buffer",
				fmt.Sprintf("size query reported %d elements, fill returned %d (ok=%t)", size, n, ok), nil)
			if contractChecks {
				panic(err)
			}
			return zero, err
		}
	}

	v, err := decode(buf)
	if err != nil {
		if errors.Is(err, ErrDecodeFailed) {
			return zero, err
		}
		return zero, newError(KindDecodeFailed, "decode", "", err)
	}
	return v, nil
}

// DecodeCString turns a NUL terminated native string into a Go string.
// An empty buffer decodes to "".
func DecodeCString(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	if b[len(b)-1] != 0 {
		return "", newError(KindDecodeFailed, "decode string", "missing NUL terminator", nil)
	}
	b = b[:len(b)-1]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return "", newError(KindDecodeFailed, "decode string", fmt.Sprintf("interior NUL at offset %d", i), nil)
	}
	if !utf8.Valid(b) {
		return "", newError(KindDecodeFailed, "decode string", "invalid UTF-8", nil)
	}
	return string(b), nil
}

// EncodeCString is the inverse of DecodeCString, used by native backends.
func EncodeCString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
