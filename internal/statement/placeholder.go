package statement

import (
	"fmt"
	"sort"
	"strings"
)

type ClientStyle int

const (
	ClientNone ClientStyle = iota
	ClientNamed
	ClientPositional
)

func (s ClientStyle) String() string {
	switch s {
	case ClientNamed:
		return "named"
	case ClientPositional:
		return "positional"
	default:
		return "none"
	}
}

// Profile describes the placeholder usage of a statement. It is a pure
// function of the statement text and the server-binds hint.
type Profile struct {
	Client           ClientStyle
	Names            []string
	HasServerPercent bool
	ServerNames      []string
	Ambiguous        bool
}

// Analyze classifies the placeholders in a statement. Percent sequences
// inside quoted strings, comments, or dollar-quoted blocks are literal text.
// A bare percent outside every recognized shape makes the profile ambiguous
// unless the caller supplied an explicit serverBinds hint; a false hint
// additionally means percent text is never treated as server-bound.
func Analyze(text string, serverBinds *bool) Profile {
	profile := Profile{}
	seenNamed := map[string]bool{}
	seenServer := map[string]bool{}
	barePercent := false

	for _, tok := range scanPlaceholders(text) {
		switch tok.kind {
		case tokNamed:
			profile.Client = ClientNamed
			if !seenNamed[tok.name] {
				seenNamed[tok.name] = true
				profile.Names = append(profile.Names, tok.name)
			}
		case tokPositional:
			if profile.Client == ClientNone {
				profile.Client = ClientPositional
			}
		case tokServerSimple:
			profile.HasServerPercent = true
		case tokServerNamed:
			profile.HasServerPercent = true
			if !seenServer[tok.name] {
				seenServer[tok.name] = true
				profile.ServerNames = append(profile.ServerNames, tok.name)
			}
		case tokBarePercent:
			barePercent = true
		}
	}

	if serverBinds != nil {
		if !*serverBinds {
			profile.HasServerPercent = false
			profile.ServerNames = nil
		}
		return profile
	}
	profile.Ambiguous = barePercent
	return profile
}

type tokenKind int

const (
	tokNamed tokenKind = iota
	tokPositional
	tokServerSimple
	tokServerNamed
	tokBarePercent
)

type token struct {
	kind       tokenKind
	name       string
	start, end int
}

// scanPlaceholders walks the statement once, tracking single-quoted strings,
// double-quoted identifiers, line and block comments, and dollar-quoted
// blocks. Placeholder tokens are only emitted from code position.
func scanPlaceholders(text string) []token {
	var tokens []token
	i := 0
	n := len(text)

	for i < n {
		c := text[i]
		switch {
		case c == '\'':
			i = skipSingleQuoted(text, i)
		case c == '"':
			i = skipDoubleQuoted(text, i)
		case c == '-' && i+1 < n && text[i+1] == '-':
			i = skipLineComment(text, i)
		case c == '/' && i+1 < n && text[i+1] == '*':
			i = skipBlockComment(text, i)
		case c == '$':
			if tag, ok := dollarQuoteTag(text, i); ok {
				i = skipDollarQuoted(text, i, tag)
				break
			}
			if tok, next, ok := scanPositional(text, i); ok {
				tokens = append(tokens, tok)
				i = next
				break
			}
			i++
		case c == ':':
			if i+1 < n && text[i+1] == ':' {
				// type cast, not a placeholder
				i += 2
				break
			}
			if tok, next, ok := scanNamed(text, i); ok {
				tokens = append(tokens, tok)
				i = next
				break
			}
			i++
		case c == '%':
			tok, next, emit := scanPercent(text, i)
			if emit {
				tokens = append(tokens, tok)
			}
			i = next
		default:
			i++
		}
	}
	return tokens
}

func skipSingleQuoted(text string, start int) int {
	i := start + 1
	for i < len(text) {
		if text[i] == '\'' {
			if i+1 < len(text) && text[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func skipDoubleQuoted(text string, start int) int {
	i := start + 1
	for i < len(text) {
		if text[i] == '"' {
			return i + 1
		}
		i++
	}
	return i
}

func skipLineComment(text string, start int) int {
	i := start + 2
	for i < len(text) && text[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(text string, start int) int {
	i := start + 2
	depth := 1
	for i < len(text) && depth > 0 {
		if i+1 < len(text) && text[i] == '/' && text[i+1] == '*' {
			depth++
			i += 2
			continue
		}
		if i+1 < len(text) && text[i] == '*' && text[i+1] == '/' {
			depth--
			i += 2
			continue
		}
		i++
	}
	return i
}

// dollarQuoteTag reports whether position i opens a dollar-quote delimiter
// ($$, $body$, ...) and returns the tag between the dollar signs.
func dollarQuoteTag(text string, i int) (string, bool) {
	j := i + 1
	for j < len(text) && isIdentByte(text[j], j > i+1) {
		j++
	}
	if j < len(text) && text[j] == '$' {
		return text[i+1 : j], true
	}
	return "", false
}

func skipDollarQuoted(text string, start int, tag string) int {
	delim := "$" + tag + "$"
	rest := text[start+len(delim):]
	closing := strings.Index(rest, delim)
	if closing < 0 {
		return len(text)
	}
	return start + len(delim) + closing + len(delim)
}

func scanPositional(text string, start int) (token, int, bool) {
	i := start + 1
	for i < len(text) && text[i] >= '0' && text[i] <= '9' {
		i++
	}
	if i == start+1 {
		return token{}, 0, false
	}
	return token{kind: tokPositional, start: start, end: i}, i, true
}

func scanNamed(text string, start int) (token, int, bool) {
	i := start + 1
	if i >= len(text) || !isIdentByte(text[i], false) {
		return token{}, 0, false
	}
	for i < len(text) && isIdentByte(text[i], true) {
		i++
	}
	return token{kind: tokNamed, name: text[start+1 : i], start: start, end: i}, i, true
}

func scanPercent(text string, start int) (token, int, bool) {
	if start+1 < len(text) {
		switch text[start+1] {
		case '%':
			// escaped literal percent
			return token{}, start + 2, false
		case 's':
			return token{kind: tokServerSimple, start: start, end: start + 2}, start + 2, true
		case '(':
			if name, end, ok := scanPercentNamed(text, start); ok {
				return token{kind: tokServerNamed, name: name, start: start, end: end}, end, true
			}
		}
	}
	return token{kind: tokBarePercent, start: start, end: start + 1}, start + 1, true
}

func scanPercentNamed(text string, start int) (string, int, bool) {
	i := start + 2
	j := i
	for j < len(text) && isIdentByte(text[j], j > i) {
		j++
	}
	if j == i || j+1 >= len(text) || text[j] != ')' || text[j+1] != 's' {
		return "", 0, false
	}
	return text[i:j], j + 2, true
}

func isIdentByte(c byte, allowDigit bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return allowDigit && c >= '0' && c <= '9'
}

type BindStyle int

const (
	// BindDollar numbers markers $1..$N and dedupes repeated names.
	BindDollar BindStyle = iota
	// BindQuestion emits ? markers and repeats values per occurrence.
	BindQuestion
)

// Bind rewrites the statement's bindable placeholders to the driver's
// positional markers and collects argument values in marker order. When the
// profile reports server-style percent placeholders, those are rewritten
// and client-style markers are left alone, mirroring driver-native binding
// precedence; otherwise named client placeholders are rewritten. Parameter
// keys that match no placeholder are ignored.
func Bind(text string, profile Profile, params map[string]any, style BindStyle) (string, []any, error) {
	var want tokenKind
	switch {
	case profile.HasServerPercent:
		want = tokServerNamed
	case profile.Client == ClientNamed:
		want = tokNamed
	default:
		return text, nil, nil
	}

	var (
		out     strings.Builder
		args    []any
		indexes = map[string]int{}
		last    = 0
	)
	for _, tok := range scanPlaceholders(text) {
		if tok.kind != want {
			continue
		}
		value, ok := params[tok.name]
		if !ok {
			return "", nil, &MissingParameterError{Name: tok.name, Known: paramKeys(params)}
		}
		out.WriteString(text[last:tok.start])
		switch style {
		case BindQuestion:
			out.WriteByte('?')
			args = append(args, value)
		default:
			idx, seen := indexes[tok.name]
			if !seen {
				args = append(args, value)
				idx = len(args)
				indexes[tok.name] = idx
			}
			fmt.Fprintf(&out, "$%d", idx)
		}
		last = tok.end
	}
	out.WriteString(text[last:])
	return out.String(), args, nil
}

// MissingParameterError reports a placeholder with no matching key in the
// supplied parameter map.
type MissingParameterError struct {
	Name  string
	Known []string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("no value for placeholder %q (have: %s)", e.Name, strings.Join(e.Known, ", "))
}

func paramKeys(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
