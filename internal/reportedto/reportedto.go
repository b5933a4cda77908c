// Package reportedto implements the reported-to journal's line-level
// logic (spec.md C10, §4.8): idempotent append and prefix-indexed lookup
// over the "reported_to" item's content. It operates on plain strings —
// the dump-directory handle owns reading/writing the item itself.
package reportedto

import "strings"

// Record is the parsed remainder of a matched reported-to line: whitespace
// separated KEY=value tokens, of which only URL and MSG are recognised
// (spec §4.8). MSG consumes the rest of the line.
type Record struct {
	URL *string
	Msg *string
}

// AppendLine returns the journal content after adding line, or content
// unchanged if line already appears verbatim as one of the journal's
// lines (spec invariant: "add-reported-to(line); add-reported-to(line)
// leaves the journal identical to a single call").
func AppendLine(content, line string) string {
	if containsLine(content, line) {
		return content
	}
	if content == "" {
		return line + "\n"
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + line + "\n"
}

func containsLine(content, line string) bool {
	for _, l := range strings.Split(content, "\n") {
		if l == line {
			return true
		}
	}
	return false
}

// FindByPrefix scans content line by line and returns the record parsed
// from the last line that starts with prefix, or nil if no line matches
// (spec §4.8). Parsing starts at the beginning of the token the prefix
// ends in, so a prefix that is itself a key (such as "URL=") keeps that
// key's value in the record.
func FindByPrefix(content, prefix string) *Record {
	var lastMatch string
	found := false
	for _, l := range strings.Split(content, "\n") {
		if strings.HasPrefix(l, prefix) {
			lastMatch = l
			found = true
		}
	}
	if !found {
		return nil
	}
	start := strings.LastIndexAny(prefix, " \t") + 1
	rec := parseRecord(lastMatch[start:])
	return &rec
}

// parseRecord parses a whitespace-separated sequence of KEY=value tokens.
// MSG= consumes the remainder of the line and terminates the scan.
func parseRecord(rest string) Record {
	var rec Record
	for rest != "" {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		switch {
		case strings.HasPrefix(rest, "URL="):
			rest = rest[len("URL="):]
			end := strings.IndexAny(rest, " \t")
			var value string
			if end == -1 {
				value, rest = rest, ""
			} else {
				value, rest = rest[:end], rest[end:]
			}
			rec.URL = &value
		case strings.HasPrefix(rest, "MSG="):
			value := rest[len("MSG="):]
			rec.Msg = &value
			return rec
		default:
			// Unrecognised token: skip to the next whitespace run.
			end := strings.IndexAny(rest, " \t")
			if end == -1 {
				return rec
			}
			rest = rest[end:]
		}
	}
	return rec
}
