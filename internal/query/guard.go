package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrRejected marks statements the guard refuses to run. Callers can
// distinguish a rejected statement from an execution failure with errors.Is.
var ErrRejected = errors.New("statement rejected")

type StatementKind int

const (
	StatementUnknown StatementKind = iota
	StatementSelect
	StatementInsert
	StatementUpdate
	StatementDelete
)

func (k StatementKind) String() string {
	switch k {
	case StatementSelect:
		return "select"
	case StatementInsert:
		return "insert"
	case StatementUpdate:
		return "update"
	case StatementDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Statement is the cleaned form of a request that passed validation.
type Statement struct {
	Kind StatementKind
	// SQL has comments stripped and trailing semicolons removed.
	SQL string
}

var (
	lineCommentPattern  = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	// attach/detach reach the filesystem and vacuum/reindex rewrite the
	// database; none of them belong in a user query, embedded or not.
	// Word boundaries keep pragma_* table functions and identifiers legal.
	deniedWordPattern = regexp.MustCompile(`(?i)\b(attach|detach|vacuum|reindex|pragma)\b`)
)

// ValidateSQL decides whether a single SQL statement may run. SELECT and WITH
// are always allowed; INSERT, UPDATE and DELETE only when allowWrites is set.
// Everything else, including any DDL, is rejected.
func ValidateSQL(sqlText string, allowWrites bool) (Statement, error) {
	cleaned := blockCommentPattern.ReplaceAllString(sqlText, " ")
	cleaned = lineCommentPattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = stripTrailingSemicolons(cleaned)
	if cleaned == "" {
		return Statement{}, fmt.Errorf("%w: empty statement", ErrRejected)
	}
	if strings.Contains(cleaned, ";") {
		return Statement{}, fmt.Errorf("%w: multiple statements are not allowed", ErrRejected)
	}
	if match := deniedWordPattern.FindString(cleaned); match != "" {
		return Statement{}, fmt.Errorf("%w: %s is not allowed", ErrRejected, strings.ToUpper(match))
	}

	kind := classify(cleaned)
	switch kind {
	case StatementSelect:
		return Statement{Kind: kind, SQL: cleaned}, nil
	case StatementInsert, StatementUpdate, StatementDelete:
		if !allowWrites {
			return Statement{}, fmt.Errorf("%w: write statements are disabled", ErrRejected)
		}
		return Statement{Kind: kind, SQL: cleaned}, nil
	default:
		return Statement{}, fmt.Errorf("%w: only SELECT, INSERT, UPDATE and DELETE statements are allowed", ErrRejected)
	}
}

// cteWritePattern spots the main verb of a writable CTE, which follows the
// closing paren of the last CTE definition.
var cteWritePattern = regexp.MustCompile(`(?i)\)\s*(insert|update|delete)\b`)

func classify(cleaned string) StatementKind {
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return StatementUnknown
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT":
		return StatementSelect
	case "WITH":
		if match := cteWritePattern.FindStringSubmatch(cleaned); match != nil {
			switch strings.ToUpper(match[1]) {
			case "INSERT":
				return StatementInsert
			case "UPDATE":
				return StatementUpdate
			default:
				return StatementDelete
			}
		}
		return StatementSelect
	case "INSERT":
		return StatementInsert
	case "UPDATE":
		return StatementUpdate
	case "DELETE":
		return StatementDelete
	default:
		return StatementUnknown
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
