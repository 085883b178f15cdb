// Package planner turns a contains-search term into a query over the
// postings table that yields candidate record ids.
//
// Terms of three or more runes are split into trigrams and the plan
// intersects their postings lists. Shorter terms have no full trigram, so
// the plan falls back to a prefix match on the stored shingles. Either way
// the result is a superset of the matching records; callers re-check the
// candidates against the text itself.
package planner

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/metrics"
)

// Kind names the shape of a plan's query.
type Kind string

const (
	// KindPrefix matches shingles starting with a term shorter than a trigram.
	KindPrefix Kind = "prefix"
	// KindSingle looks up the one distinct trigram of the term.
	KindSingle Kind = "single"
	// KindIntersect keeps records holding every trigram of the term.
	KindIntersect Kind = "intersect"
)

// Plan describes how to find the candidates for one term.
type Plan struct {
	Kind Kind `json:"kind"`
	// Term is the normalized, case-folded search term.
	Term string `json:"term"`
	// Shingles are the folded distinct trigrams looked up. Empty for prefix
	// plans.
	Shingles []string `json:"shingles,omitempty"`

	table   string
	dialect database.Dialect
}

// Planner builds plans against one postings table.
type Planner struct {
	table   string
	dialect database.Dialect
	metrics *metrics.Metrics
}

// New returns a Planner for the postings table, rendering SQL for dialect.
func New(table string, dialect database.Dialect, m *metrics.Metrics) *Planner {
	return &Planner{table: table, dialect: dialect, metrics: m}
}

// PlanFor builds the plan for term. Whitespace is collapsed before the term
// is measured, and an empty term is rejected.
func (p *Planner) PlanFor(term string) (*Plan, error) {
	norm := tokenizer.Normalize(term)
	if norm == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "search term must not be empty")
	}

	plan := &Plan{Term: index.Fold(norm), table: p.table, dialect: p.dialect}
	if utf8.RuneCountInString(norm) < tokenizer.Width {
		plan.Kind = KindPrefix
	} else {
		plan.Shingles = foldDistinct(tokenizer.Shingles(norm))
		if len(plan.Shingles) == 1 {
			plan.Kind = KindSingle
		} else {
			plan.Kind = KindIntersect
		}
	}
	p.metrics.PlansTotal.WithLabelValues(string(plan.Kind)).Inc()
	return plan, nil
}

// Build renders the plan as a SELECT of record_id. Placeholders are numbered
// from argOffset+1 so the statement can be embedded as an IN (...) subquery
// in a caller query that already binds argOffset arguments. The result is
// unordered.
func (pl *Plan) Build(argOffset int) (string, []any) {
	switch pl.Kind {
	case KindPrefix:
		query := fmt.Sprintf(`SELECT DISTINCT record_id FROM %s WHERE shingle LIKE %s ESCAPE '\'`,
			pl.table, pl.dialect.Placeholder(argOffset+1))
		return query, []any{index.EscapeLike(pl.Term) + "%"}
	case KindSingle:
		query := fmt.Sprintf("SELECT record_id FROM %s WHERE shingle = %s",
			pl.table, pl.dialect.Placeholder(argOffset+1))
		return query, []any{pl.Shingles[0]}
	default:
		args := make([]any, len(pl.Shingles))
		for i, s := range pl.Shingles {
			args[i] = s
		}
		query := fmt.Sprintf("SELECT record_id FROM %s WHERE shingle IN (%s) GROUP BY record_id HAVING COUNT(*) = %d",
			pl.table, database.Placeholders(pl.dialect, argOffset, len(args)), len(args))
		return query, args
	}
}

// foldDistinct folds shingles and drops the ones that collide after folding,
// keeping the first occurrence.
func foldDistinct(shingles []string) []string {
	seen := make(map[string]struct{}, len(shingles))
	out := make([]string, 0, len(shingles))
	for _, s := range shingles {
		f := index.Fold(s)
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
