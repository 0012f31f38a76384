package repair

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

// stripWrapping removes code fences, surrounding backticks and blank lines.
// A fence is only recognized on a line of its own or at either end of the
// text, so a fence quoted inside a string value is kept.
func stripWrapping(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !isFenceLine(line) {
			kept = append(kept, line)
		}
	}
	s := strings.TrimSpace(strings.Join(kept, "\n"))

	if strings.HasPrefix(s, "`") {
		s = strings.TrimLeft(s, "`")
		s = strings.TrimLeftFunc(s, isFenceTag)
	}
	s = strings.Trim(s, " \t\r\n`")
	return strings.TrimSpace(s)
}

// isFenceLine matches ``` optionally followed by a language tag.
func isFenceLine(line string) bool {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "```") {
		return false
	}
	for _, r := range strings.TrimLeft(t, "`") {
		if !isFenceTag(r) {
			return false
		}
	}
	return true
}

func isFenceTag(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// cutToObject drops everything before the first '{'.
func cutToObject(s string) (string, bool) {
	i := strings.IndexByte(s, '{')
	if i < 0 {
		return "", false
	}
	return s[i:], true
}

var pythonLiterals = map[string]string{
	"True": "true", "TRUE": "true",
	"False": "false", "FALSE": "false",
	"None": "null", "NULL": "null", "Null": "null",
}

// normalize fixes token-level defects outside of strings: bare keys get
// quoted (any letter, so non-ASCII keys too), bare word values followed by a
// delimiter get quoted, and line breaks inside strings collapse to a space.
func normalize(s string) (string, []string) {
	var (
		out         strings.Builder
		transforms  = newTransformSet()
		state       = stateDefault
		stack       []byte
		expectKey   bool
		expectValue bool
	)
	out.Grow(len(s) + 16)

	for i := 0; i < len(s); {
		c := s[i]

		switch state {
		case stateEscaped:
			out.WriteByte(c)
			state = stateInString
			i++
			continue
		case stateInString:
			switch {
			case c == '\\':
				state = stateEscaped
				out.WriteByte(c)
				i++
			case c == '"':
				state = stateDefault
				out.WriteByte(c)
				i++
			case c == '\r' || c == '\n':
				j := i
				for j < len(s) && (s[j] == '\r' || s[j] == '\n') {
					j++
				}
				out.WriteByte(' ')
				transforms.add("collapse_newlines")
				i = j
			case c == '\t' || c < 0x20:
				out.WriteByte(' ')
				transforms.add("strip_control_chars")
				i++
			default:
				out.WriteByte(c)
				i++
			}
			continue
		}

		switch {
		case c == '"':
			state = stateInString
			expectKey, expectValue = false, false
			out.WriteByte(c)
			i++
		case c == '{' || c == '[':
			stack = append(stack, c)
			expectKey, expectValue = c == '{', c == '['
			out.WriteByte(c)
			i++
		case c == '}' || c == ']':
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			expectKey, expectValue = false, false
			out.WriteByte(c)
			i++
		case c == ':':
			expectKey, expectValue = false, true
			out.WriteByte(c)
			i++
		case c == ',':
			inArray := len(stack) > 0 && stack[len(stack)-1] == '['
			expectKey, expectValue = !inArray, inArray
			out.WriteByte(c)
			i++
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			out.WriteByte(c)
			i++
		default:
			if expectKey {
				if key, next, ok := bareKey(s, i); ok {
					out.WriteString(quote(key))
					transforms.add("quote_keys")
					expectKey = false
					i = next
					continue
				}
			}
			if expectValue {
				if tok, next, ok := bareValue(s, i); ok {
					out.WriteString(tok.text)
					if tok.transform != "" {
						transforms.add(tok.transform)
					}
					expectValue = false
					i = next
					continue
				}
			}
			_, size := utf8.DecodeRuneInString(s[i:])
			out.WriteString(s[i : i+size])
			expectKey, expectValue = false, false
			i += size
		}
	}

	return out.String(), transforms.list()
}

// bareKey reads an unquoted key starting at i. Keys may contain letters,
// digits, '_', '-', '$' and inner spaces and must be followed by ':'.
func bareKey(s string, i int) (string, int, bool) {
	r, _ := utf8.DecodeRuneInString(s[i:])
	if !(unicode.IsLetter(r) || r == '_' || r == '$') {
		return "", i, false
	}
	j := i
	for j < len(s) {
		r, size := utf8.DecodeRuneInString(s[j:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' || r == '-' || r == '$' || r == ' ' {
			j += size
			continue
		}
		break
	}
	key := strings.TrimRight(s[i:j], " ")
	k := j
	for k < len(s) && (s[k] == ' ' || s[k] == '\t') {
		k++
	}
	if k >= len(s) || s[k] != ':' {
		return "", i, false
	}
	return key, i + len(key), true
}

type valueToken struct {
	text      string
	transform string
}

// bareValue reads an unquoted value starting at i, up to the next ',', '}',
// ']' or line break. JSON literals and numbers are kept, Python-style
// literals are lower-cased, and other words are quoted only when a delimiter
// follows them; a token cut off by the end of input is left untouched.
func bareValue(s string, i int) (valueToken, int, bool) {
	j := len(s)
	if k := strings.IndexAny(s[i:], ",}]\n\r"); k >= 0 {
		j = i + k
	}
	raw := s[i:j]
	tok := strings.TrimRight(raw, " \t")
	if tok == "" {
		return valueToken{}, i, false
	}
	end := i + len(tok)

	if json.Valid([]byte(tok)) {
		return valueToken{text: tok}, end, true
	}
	if lit, ok := pythonLiterals[tok]; ok {
		return valueToken{text: lit, transform: "normalize_literals"}, end, true
	}
	if j >= len(s) {
		return valueToken{text: tok}, end, true
	}
	return valueToken{text: quote(tok), transform: "quote_values"}, end, true
}

func quote(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return `"` + s + `"`
	}
	return string(data)
}

type transformSet struct {
	seen  map[string]bool
	order []string
}

func newTransformSet() *transformSet {
	return &transformSet{seen: make(map[string]bool)}
}

func (t *transformSet) add(name string) {
	if !t.seen[name] {
		t.seen[name] = true
		t.order = append(t.order, name)
	}
}

func (t *transformSet) list() []string {
	return t.order
}
