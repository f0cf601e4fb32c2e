// Package safety classifies translated SQL statements and decides whether
// they may be executed. Classification is purely lexical: it never parses
// the full statement, only enough of it to find the top-level verb and to
// detect multi-statement input. Rejection is a normal outcome, not an error.
package safety

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nlquery/nlquery/internal/schema"
)

type Kind string

const (
	KindReadOnly       Kind = "read_only"
	KindMutating       Kind = "mutating"
	KindSchemaChanging Kind = "schema_changing"
	KindMultiStatement Kind = "multi_statement"
	KindUnparseable    Kind = "unparseable"
)

// Classification is the validator's verdict on a single candidate
// statement. Tables holds the snapshot table names the statement mentions;
// it is informational and never affects the policy decision.
type Classification struct {
	Kind   Kind     `json:"kind"`
	Verb   string   `json:"verb,omitempty"`
	Tables []string `json:"tables,omitempty"`
}

var verbKinds = map[string]Kind{
	"select":  KindReadOnly,
	"show":    KindReadOnly,
	"explain": KindReadOnly,
	"pragma":  KindReadOnly,
	"values":  KindReadOnly,

	"insert": KindMutating,
	"update": KindMutating,
	"delete": KindMutating,
	"merge":  KindMutating,

	"create":   KindSchemaChanging,
	"alter":    KindSchemaChanging,
	"drop":     KindSchemaChanging,
	"truncate": KindSchemaChanging,
}

// Classify inspects a single candidate statement. Leading comments and
// whitespace are ignored; a semicolon followed by further content outside
// string literals makes the whole input MultiStatement regardless of its
// leading keyword. WITH is resolved to the top-level verb after the CTE
// list at paren depth zero.
func Classify(sqlText string, snapshot *schema.Snapshot) Classification {
	tables := referencedTables(sqlText, snapshot)
	trimmed := stripLeading(sqlText)
	if trimmed == "" {
		return Classification{Kind: KindUnparseable, Tables: tables}
	}
	if hasTrailingStatement(trimmed) {
		return Classification{Kind: KindMultiStatement, Tables: tables}
	}
	verb := topLevelVerb(trimmed)
	kind, ok := verbKinds[verb]
	if !ok {
		return Classification{Kind: KindUnparseable, Tables: tables}
	}
	return Classification{Kind: kind, Verb: verb, Tables: tables}
}

// Policy decides whether a classified statement may run. Read-only
// statements are always permitted; mutations and schema changes need the
// explicit opt-in; multi-statement and unparseable input never runs.
type Policy struct {
	AllowMutations bool
}

type Decision struct {
	Permitted bool
	Reason    string
}

func (p Policy) Decide(c Classification) Decision {
	switch c.Kind {
	case KindReadOnly:
		return Decision{Permitted: true}
	case KindMutating:
		if p.AllowMutations {
			return Decision{Permitted: true}
		}
		return Decision{Reason: fmt.Sprintf("statement mutates data (%s); rerun with mutations allowed to execute it", strings.ToUpper(c.Verb))}
	case KindSchemaChanging:
		if p.AllowMutations {
			return Decision{Permitted: true}
		}
		return Decision{Reason: fmt.Sprintf("statement changes the schema (%s); rerun with mutations allowed to execute it", strings.ToUpper(c.Verb))}
	case KindMultiStatement:
		return Decision{Reason: "multiple SQL statements are never executed"}
	default:
		return Decision{Reason: "statement could not be classified"}
	}
}

// stripLeading removes leading whitespace, `--` line comments and `/* */`
// block comments. An unterminated comment swallows the rest of the input.
func stripLeading(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			idx := strings.IndexByte(s, '\n')
			if idx < 0 {
				return ""
			}
			s = s[idx+1:]
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s[2:], "*/")
			if idx < 0 {
				return ""
			}
			s = s[idx+4:]
		default:
			return s
		}
	}
}

func hasTrailingStatement(s string) bool {
	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == '\'':
			i = skipSingleQuoted(s, i)
		case c == '"':
			i = skipDoubleQuoted(s, i)
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			i = skipLineComment(s, i)
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i = skipBlockComment(s, i)
		case c == ';':
			return stripLeading(s[i+1:]) != ""
		default:
			i++
		}
	}
	return false
}

// topLevelVerb returns the lowercased verb that governs the statement. For
// WITH it scans past the CTE list: the first known verb keyword at paren
// depth zero after the WITH itself wins. Returns "" when no verb is found.
func topLevelVerb(s string) string {
	first := strings.ToLower(firstToken(s))
	if first != "with" {
		return first
	}
	depth := 0
	sawWith := false
	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == '\'':
			i = skipSingleQuoted(s, i)
		case c == '"':
			i = skipDoubleQuoted(s, i)
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			i = skipLineComment(s, i)
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i = skipBlockComment(s, i)
		case c == '(':
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			i++
		case isWordByte(c):
			j := i
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			word := strings.ToLower(s[i:j])
			i = j
			if depth != 0 {
				continue
			}
			if !sawWith {
				sawWith = word == "with"
				continue
			}
			if _, ok := verbKinds[word]; ok {
				return word
			}
		default:
			i++
		}
	}
	return ""
}

// referencedTables matches identifier words in the statement against the
// snapshot's table names, case-insensitively. Results come back in the
// snapshot's lexical order.
func referencedTables(sqlText string, snapshot *schema.Snapshot) []string {
	if snapshot == nil || len(snapshot.Tables) == 0 {
		return nil
	}
	words := map[string]bool{}
	i := 0
	for i < len(sqlText) {
		c := sqlText[i]
		if !isWordByte(c) {
			i++
			continue
		}
		j := i
		for j < len(sqlText) && isWordByte(sqlText[j]) {
			j++
		}
		words[strings.ToLower(sqlText[i:j])] = true
		i = j
	}
	var matched []string
	for _, table := range snapshot.Tables {
		if words[strings.ToLower(table.Name)] {
			matched = append(matched, table.Name)
		}
	}
	sort.Strings(matched)
	return matched
}

func firstToken(s string) string {
	i := 0
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	return s[:i]
}

func isWordByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func skipSingleQuoted(s string, i int) int {
	i++
	for i < len(s) {
		if s[i] == '\'' {
			if i+1 < len(s) && s[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func skipDoubleQuoted(s string, i int) int {
	i++
	for i < len(s) {
		if s[i] == '"' {
			return i + 1
		}
		i++
	}
	return i
}

func skipLineComment(s string, i int) int {
	idx := strings.IndexByte(s[i:], '\n')
	if idx < 0 {
		return len(s)
	}
	return i + idx + 1
}

func skipBlockComment(s string, i int) int {
	idx := strings.Index(s[i+2:], "*/")
	if idx < 0 {
		return len(s)
	}
	return i + idx + 4
}
