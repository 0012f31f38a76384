package repair

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxPartialCuts = 64

func parse(s string) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func isContainer(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	}
	return false
}

// syntaxOffset returns the index of the byte the decoder rejected.
func syntaxOffset(err error, n int) (int, bool) {
	var se *json.SyntaxError
	if !errors.As(err, &se) || n == 0 {
		return 0, false
	}
	p := int(se.Offset) - 1
	if p < 0 {
		p = 0
	}
	if p >= n {
		p = n - 1
	}
	return p, true
}

// tokenEnd returns the end of a run of word characters starting at i.
func tokenEnd(s string, i int) int {
	j := i
	for j < len(s) {
		r, size := utf8.DecodeRuneInString(s[j:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' || r == '-' || r == ' ' {
			j += size
			continue
		}
		break
	}
	for j > i && s[j-1] == ' ' {
		j--
	}
	return j
}

func prevNonSpace(s string, i int) byte {
	for k := i - 1; k >= 0; k-- {
		switch s[k] {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return s[k]
	}
	return 0
}

func endsValue(c byte) bool {
	return c == '"' || c == '}' || c == ']' || c == 'e' || c == 'l' || (c >= '0' && c <= '9')
}

// positionalCandidates proposes single edits around the rejected byte at p.
func positionalCandidates(s string, p int) []string {
	var out []string
	r, _ := utf8.DecodeRuneInString(s[p:])

	if r >= utf8.RuneSelf && unicode.IsLetter(r) {
		j := tokenEnd(s, p)
		if j < len(s) && s[j] == '"' {
			// opening quote missing
			out = append(out, s[:p]+`"`+s[p:])
		} else {
			out = append(out, s[:p]+quote(s[p:j])+s[j:])
		}
	}

	if c := s[p]; (c == '"' || c == '{' || c == '[') && endsValue(prevNonSpace(s, p)) {
		out = append(out, s[:p]+","+s[p:])
	}

	out = append(out, s[:p]+`"`+s[p:])

	if r < utf8.RuneSelf && unicode.IsLetter(r) {
		if j := tokenEnd(s, p); j > p {
			out = append(out, s[:p]+quote(s[p:j])+s[j:])
		}
	}
	return out
}

// positional repeatedly applies the candidate edit that either parses or
// moves the decoder's failure point forward. It stops after maxSteps edits
// or when no candidate makes progress.
func positional(s string, err error, maxSteps int) (interface{}, string, error) {
	cur, curErr := s, err
	for step := 0; step < maxSteps; step++ {
		off, ok := syntaxOffset(curErr, len(cur))
		if !ok {
			break
		}

		var (
			best    string
			bestErr error
			bestOff = off + 2 // every candidate inserts at most two bytes
		)
		for _, cand := range positionalCandidates(cur, off) {
			closed, _ := closeFragment(cand)
			v, perr := parse(closed)
			if perr == nil {
				return v, closed, nil
			}
			if o, ok := syntaxOffset(perr, len(closed)); ok && o > bestOff {
				best, bestErr, bestOff = closed, perr, o
			}
		}
		if best == "" {
			break
		}
		cur, curErr = best, bestErr
	}
	return nil, cur, curErr
}

// partialCuts lists prefix lengths to try, best first. Commas win when the
// nearest one sits within window bytes of the failure point; colon and quote
// cuts come next; then earlier commas are walked back.
func partialCuts(s string, limit, window int) []int {
	if limit > len(s) {
		limit = len(s)
	}
	head := s[:limit]

	var commas []int
	for end := limit; len(commas) < maxPartialCuts; {
		i := strings.LastIndexByte(head[:end], ',')
		if i <= 0 {
			break
		}
		commas = append(commas, i)
		end = i
	}

	var others []int
	if i := strings.LastIndexByte(head, ':'); i > 0 {
		others = append(others, i+1)
	}
	if i := strings.LastIndexByte(head, '"'); i > 0 {
		others = append(others, i+1)
	}

	if len(commas) > 0 && limit-commas[0] <= window {
		return append(append([]int{commas[0]}, others...), commas[1:]...)
	}
	return append(others, commas...)
}

// partial truncates s before the failure point at a structural boundary,
// closes what is open and parses. Missing trailing fields are accepted.
func partial(s string, limit, window int) (interface{}, string, []string, error) {
	var lastErr error
	for _, cut := range partialCuts(s, limit, window) {
		closed, transforms := closeFragment(s[:cut])
		v, err := parse(closed)
		if err != nil {
			lastErr = err
			continue
		}
		if _, ok := v.(map[string]interface{}); ok {
			return v, closed, transforms, nil
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no structural boundary before failure point")
	}
	return nil, "", nil, lastErr
}
