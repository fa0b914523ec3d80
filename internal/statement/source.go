package statement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/runsql/runsql/internal/storage"
)

// ErrSourceNotFound reports that a file or object referenced by a source
// does not exist. It is never silenced by an execution policy.
var ErrSourceNotFound = errors.New("statement source not found")

// ReadError reports an I/O failure while resolving a source that does exist.
type ReadError struct {
	Ref string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read statement source %q: %v", e.Ref, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

type Kind int

const (
	KindInline Kind = iota
	KindBytes
	KindFilePath
	KindObjectKey
)

func (k Kind) String() string {
	switch k {
	case KindInline:
		return "inline"
	case KindBytes:
		return "bytes"
	case KindFilePath:
		return "file"
	case KindObjectKey:
		return "object"
	default:
		return "unknown"
	}
}

// Source is the origin of a statement before resolution. A source is owned
// by the call that constructs it and never persisted.
type Source struct {
	Kind Kind
	Text string
	Raw  []byte
	Ref  string
}

// Resolved is the outcome of resolving a Source to executable text.
type Resolved struct {
	Text   string
	Origin Source
}

const (
	objectKeyScheme = "s3://"
	maxPathLength   = 256
)

// sqlKeywordPattern matches any token that marks a string as SQL text
// rather than a path. Matching is conservative: a keyword anywhere in the
// value disqualifies it as a path, even if it ends in a SQL extension.
// Underscores count as separators, so "drop_tables" still contains "drop".
var sqlKeywordPattern = regexp.MustCompile(`(?i)(^|[^a-z0-9])(select|insert|update|delete|create|drop|alter|with|grant|revoke|truncate|vacuum|explain|copy|begin|commit|rollback|set|call|do)([^a-z0-9]|$)`)

// FromString classifies a string value as inline SQL, a file path, or an
// object key. Classification performs no I/O.
func FromString(value string) Source {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, objectKeyScheme) {
		return Source{Kind: KindObjectKey, Ref: strings.TrimPrefix(trimmed, objectKeyScheme)}
	}
	if looksLikePath(trimmed) {
		return Source{Kind: KindFilePath, Ref: trimmed}
	}
	return Source{Kind: KindInline, Text: value}
}

// FromBytes wraps a raw byte buffer. Byte input is never treated as a path.
func FromBytes(raw []byte) Source {
	return Source{Kind: KindBytes, Raw: raw}
}

// IsSQLText reports whether a string value denotes SQL text rather than a
// reference to a file containing SQL.
func IsSQLText(value string) bool {
	src := FromString(value)
	return src.Kind == KindInline
}

func looksLikePath(value string) bool {
	if value == "" || len(value) > maxPathLength {
		return false
	}
	if strings.ContainsAny(value, " \t\r\n;") {
		return false
	}
	if sqlKeywordPattern.MatchString(value) {
		return false
	}
	lower := strings.ToLower(value)
	return strings.HasSuffix(lower, ".sql") || strings.HasSuffix(lower, ".ddl")
}

// Resolver turns a Source into statement text. Object-key sources require a
// configured store; file sources read from the local filesystem.
type Resolver struct {
	Store storage.ObjectStore
}

func (r *Resolver) Resolve(ctx context.Context, src Source) (Resolved, error) {
	switch src.Kind {
	case KindInline:
		return Resolved{Text: src.Text, Origin: src}, nil
	case KindBytes:
		return Resolved{Text: string(src.Raw), Origin: src}, nil
	case KindFilePath:
		text, err := readFile(src.Ref)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Text: text, Origin: src}, nil
	case KindObjectKey:
		if r == nil || r.Store == nil {
			return Resolved{}, fmt.Errorf("object source %q: no object store configured", src.Ref)
		}
		text, err := r.readObject(ctx, src.Ref)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Text: text, Origin: src}, nil
	default:
		return Resolved{}, fmt.Errorf("unknown source kind %d", src.Kind)
	}
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return "", &ReadError{Ref: path, Err: err}
	}
	return string(data), nil
}

func (r *Resolver) readObject(ctx context.Context, key string) (string, error) {
	reader, err := r.Store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", fmt.Errorf("%w: %s%s", ErrSourceNotFound, objectKeyScheme, key)
		}
		return "", &ReadError{Ref: objectKeyScheme + key, Err: err}
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", &ReadError{Ref: objectKeyScheme + key, Err: err}
	}
	return string(data), nil
}
