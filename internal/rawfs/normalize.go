package rawfs

// Normalize implements load_text's payload normalisation (spec §4.2):
//
//   - Bytes that are whitespace or printable (>= 0x20) are kept verbatim;
//     other control bytes are dropped; NUL is rewritten to a space.
//   - If the result contains exactly one newline and it is the final
//     byte, that trailing newline is stripped.
//   - Otherwise, if the result contains at least one newline and the
//     last byte isn't one, a newline is appended.
//   - A result with zero newlines is returned exactly as filtered, with
//     no newline appended.
//
// This is content normalisation for field display (spec §9's open
// question), not a security boundary — bytes >= 0x80 pass through
// unfiltered.
func Normalize(data []byte) string {
	out := make([]byte, 0, len(data))
	newlines := 0
	for _, b := range data {
		switch {
		case b == 0x00:
			out = append(out, ' ')
		case b == '\n':
			out = append(out, b)
			newlines++
		case isWhitespace(b) || b >= 0x20:
			out = append(out, b)
		default:
			// drop other control bytes
		}
	}

	switch {
	case newlines == 0:
		return string(out)
	case newlines == 1 && len(out) > 0 && out[len(out)-1] == '\n':
		return string(out[:len(out)-1])
	case len(out) == 0 || out[len(out)-1] != '\n':
		out = append(out, '\n')
		return string(out)
	default:
		return string(out)
	}
}

func isWhitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}
