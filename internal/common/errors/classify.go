// internal/common/errors/classify.go
package errors

import (
	"database/sql"
	stderrors "errors"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// Kind buckets backend errors into the cases the workflow reacts to.
type Kind string

const (
	KindMissingColumn   Kind = "missing_column"
	KindUniqueViolation Kind = "unique_violation"
	KindNotFound        Kind = "not_found"
	KindOther           Kind = "other"
)

// Classified is the result of inspecting a backend error.
type Classified struct {
	Kind          Kind
	MissingColumn string // set when Kind == KindMissingColumn and the column could be extracted
}

const pqUndefinedColumn = "42703"

var (
	// `column "application_source" of relation "applications" does not exist`
	quotedColumnRe = regexp.MustCompile(`(?i)column "([A-Za-z0-9_]+)"`)
	// PostgREST-style: `Could not find the 'application_source' column`
	tickedColumnRe = regexp.MustCompile(`(?i)'([A-Za-z0-9_]+)' column`)
)

// Classify inspects a backend error by code first and by case-insensitive
// message/hint matching second, replacing the ad hoc substring checks the
// callers would otherwise each carry.
func Classify(err error) Classified {
	if err == nil {
		return Classified{Kind: KindOther}
	}

	if stderrors.Is(err, sql.ErrNoRows) {
		return Classified{Kind: KindNotFound}
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch {
		case string(pqErr.Code) == pqUndefinedColumn:
			return Classified{
				Kind:          KindMissingColumn,
				MissingColumn: extractColumn(pqErr.Message + " " + pqErr.Hint),
			}
		case pqErr.Code.Class() == "23" && string(pqErr.Code) == "23505":
			return Classified{Kind: KindUniqueViolation}
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "column") &&
		(strings.Contains(msg, "does not exist") || strings.Contains(msg, "could not find")) {
		return Classified{
			Kind:          KindMissingColumn,
			MissingColumn: extractColumn(err.Error()),
		}
	}
	if strings.Contains(msg, "duplicate key value") {
		return Classified{Kind: KindUniqueViolation}
	}

	return Classified{Kind: KindOther}
}

// MissingColumn resolves which of the candidate columns an error implicates.
// When Classify extracted a column name that name must match a candidate;
// otherwise the raw message is scanned for each candidate, case-insensitive.
func MissingColumn(err error, candidates []string) (string, bool) {
	c := Classify(err)
	if c.Kind != KindMissingColumn {
		return "", false
	}

	if c.MissingColumn != "" {
		for _, cand := range candidates {
			if strings.EqualFold(cand, c.MissingColumn) {
				return cand, true
			}
		}
		return "", false
	}

	msg := strings.ToLower(err.Error())
	for _, cand := range candidates {
		if strings.Contains(msg, strings.ToLower(cand)) {
			return cand, true
		}
	}
	return "", false
}

func extractColumn(text string) string {
	if m := quotedColumnRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := tickedColumnRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
