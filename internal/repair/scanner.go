package repair

import "strings"

type scanState int

const (
	stateDefault scanState = iota
	stateInString
	stateEscaped
)

// scanResult is what a single left-to-right pass learned about the structure.
type scanResult struct {
	// End is the index just past the closer that returned nesting to zero,
	// or -1 when the top-level value never closed.
	End int
	// Open holds the unclosed '{' and '[' in nesting order.
	Open []byte
	// State is the scanner state at End or at the end of input.
	State  scanState
	Quotes int
}

// scan walks s with a default/inString/escaped state machine. Braces and
// brackets inside strings are ignored. Escapes are a single-character lookahead.
func scan(s string) scanResult {
	res := scanResult{End: -1}
	state := stateDefault
	started := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case stateEscaped:
			state = stateInString
		case stateInString:
			switch c {
			case '\\':
				state = stateEscaped
			case '"':
				state = stateDefault
				res.Quotes++
			}
		default:
			switch c {
			case '"':
				state = stateInString
				res.Quotes++
			case '{', '[':
				res.Open = append(res.Open, c)
				started = true
			case '}', ']':
				if n := len(res.Open); n > 0 {
					res.Open = res.Open[:n-1]
				}
				if started && len(res.Open) == 0 {
					res.End = i + 1
					res.State = stateDefault
					return res
				}
			}
		}
	}

	res.State = state
	return res
}

// closers returns the text closing every open container, innermost first.
func (r scanResult) closers() string {
	var b strings.Builder
	for i := len(r.Open) - 1; i >= 0; i-- {
		if r.Open[i] == '[' {
			b.WriteByte(']')
		} else {
			b.WriteByte('}')
		}
	}
	return b.String()
}

// closeFragment turns a prefix of a JSON document into a syntactically closed
// one: trailing text after a complete top-level value is dropped, an open
// string is terminated, a dangling comma is removed, a dangling colon gets a
// null value, and missing closers are appended.
func closeFragment(s string) (string, []string) {
	res := scan(s)
	if res.End >= 0 {
		if res.End < len(s) {
			return s[:res.End], []string{"truncate_after_balanced"}
		}
		return s, nil
	}

	var transforms []string
	out := s
	switch res.State {
	case stateEscaped:
		out = out[:len(out)-1] + `"`
		transforms = append(transforms, "close_string")
	case stateInString:
		out += `"`
		transforms = append(transforms, "close_string")
	default:
		trimmed := strings.TrimRight(out, " \t\r\n")
		if strings.HasSuffix(trimmed, ",") {
			trimmed = strings.TrimSuffix(trimmed, ",")
			transforms = append(transforms, "drop_trailing_comma")
		}
		if strings.HasSuffix(trimmed, ":") {
			trimmed += "null"
			transforms = append(transforms, "null_dangling_value")
		}
		out = trimmed
	}

	if c := res.closers(); c != "" {
		out += c
		transforms = append(transforms, "append_closers")
	}
	return out, transforms
}
