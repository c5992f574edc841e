package sqlvalue

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrMissingParam is returned when a placeholder has no value.
	ErrMissingParam = errors.New("sqlvalue: missing parameter")

	// ErrUnusedParam is returned when a value has no placeholder.
	ErrUnusedParam = errors.New("sqlvalue: unused parameter")
)

// Dialect selects placeholder syntax and schema spelling.
type Dialect uint8

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return fmt.Sprintf("dialect(%d)", uint8(d))
	}
}

// Schema statements are written for SQLite and rewritten in order for
// other dialects.
var postgresSchemaReplacements = []struct{ from, to string }{
	{"INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY"},
	{"BLOB", "BYTEA"},
}

// Schema rewrites a SQLite DDL statement for d.
func (d Dialect) Schema(ddl string) string {
	if d != Postgres {
		return ddl
	}
	for _, r := range postgresSchemaReplacements {
		ddl = strings.ReplaceAll(ddl, r.from, r.to)
	}
	return ddl
}

// Bind rewrites :name placeholders in stmt to d's positional form and
// returns the matching driver arguments. Quoted literals, quoted
// identifiers, line comments and :: casts are left untouched.
func Bind(d Dialect, stmt string, params Params) (string, []any, error) {
	var (
		out     strings.Builder
		args    []any
		used    = make(map[string]int, len(params))
		missing []string
	)
	out.Grow(len(stmt))

	for i := 0; i < len(stmt); {
		c := stmt[i]
		switch {
		case c == '\'' || c == '"':
			end := skipQuoted(stmt, i, c)
			out.WriteString(stmt[i:end])
			i = end

		case c == '-' && i+1 < len(stmt) && stmt[i+1] == '-':
			end := strings.IndexByte(stmt[i:], '\n')
			if end < 0 {
				end = len(stmt)
			} else {
				end += i
			}
			out.WriteString(stmt[i:end])
			i = end

		case c == ':' && i+1 < len(stmt) && stmt[i+1] == ':':
			out.WriteString("::")
			i += 2

		case c == ':' && i+1 < len(stmt) && isNameStart(stmt[i+1]):
			j := i + 1
			for j < len(stmt) && isNameChar(stmt[j]) {
				j++
			}
			name := stmt[i+1 : j]
			i = j

			v, ok := params[name]
			if !ok {
				missing = append(missing, name)
				continue
			}

			if d == Postgres {
				if n, seen := used[name]; seen {
					out.WriteString("$" + strconv.Itoa(n))
					continue
				}
				args = append(args, v.Driver())
				used[name] = len(args)
				out.WriteString("$" + strconv.Itoa(len(args)))
				continue
			}
			args = append(args, v.Driver())
			used[name] = len(args)
			out.WriteByte('?')

		default:
			out.WriteByte(c)
			i++
		}
	}

	if len(missing) > 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrMissingParam, strings.Join(missing, ", "))
	}

	var unused []string
	for name := range params {
		if _, ok := used[name]; !ok {
			unused = append(unused, name)
		}
	}
	if len(unused) > 0 {
		slices.Sort(unused)
		return "", nil, fmt.Errorf("%w: %s", ErrUnusedParam, strings.Join(unused, ", "))
	}

	return out.String(), args, nil
}

// skipQuoted returns the index just past the literal opened at start.
// A doubled quote character is an escaped quote.
func skipQuoted(s string, start int, q byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
