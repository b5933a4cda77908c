// Package timefile parses the dump directory's required "time" metadata
// item (spec.md C3, §4.3): a bounded decimal unix timestamp.
package timefile

import (
	"errors"
	"strconv"
)

// MaxReadBytes is the most bytes ever read from a time file — sizeof(time_t)*3+1
// in the original C implementation. A 64-bit time_t makes that 25 bytes;
// a full buffer read means the value would overflow any sane timestamp,
// so the caller reads this many bytes and rejects the file if all of them
// were consumed.
const MaxReadBytes = 8*3 + 1

// MaxValue is the open upper bound a valid timestamp must stay strictly
// under: 2^(bits(time_t)-1) - 1 for a 64-bit signed time_t.
const MaxValue = 1<<63 - 1

var (
	// ErrOverflow means the full read buffer was consumed — the value is
	// too long to be a legitimate timestamp.
	ErrOverflow = errors.New("timefile: value too long")
	// ErrMalformed means the content did not parse as a non-negative,
	// unsigned, base-10 integer strictly less than MaxValue.
	ErrMalformed = errors.New("timefile: not a valid timestamp")
)

// Parse validates and parses the content of a time item, already
// truncated to at most MaxReadBytes bytes by the caller so Parse can
// detect the overflow condition (the caller passes fullBufferConsumed
// when the read filled the entire MaxReadBytes buffer).
func Parse(data []byte, fullBufferConsumed bool) (int64, error) {
	if fullBufferConsumed {
		return 0, ErrOverflow
	}

	// Strip at most one trailing newline.
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}

	if len(data) == 0 {
		return 0, ErrMalformed
	}

	for _, b := range data {
		if b < '0' || b > '9' {
			// Rejects signed inputs, leading spaces, and any other
			// non-digit, matching spec §4.3's "rejects signed inputs,
			// leading spaces, empty strings, trailing garbage".
			return 0, ErrMalformed
		}
	}

	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, ErrMalformed
	}
	if v < 0 || v >= MaxValue {
		return 0, ErrMalformed
	}
	return v, nil
}
