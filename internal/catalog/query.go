package catalog

import (
	"fmt"
	"strings"
)

type Sort int

const (
	// SortPriceDesc is the default; anything but "asc" selects it.
	SortPriceDesc Sort = iota
	SortPriceAsc
)

func ParseSort(raw string) Sort {
	if raw == "asc" {
		return SortPriceAsc
	}
	return SortPriceDesc
}

type Query struct {
	Search string
	Sort   Sort
}

// textSearch is a search string split the way document-store text search
// reads it: bare terms are alternatives, quoted phrases are all required,
// and -terms exclude.
type textSearch struct {
	terms   []string
	phrases []string
	negated []string
}

func parseTextSearch(s string) textSearch {
	var ts textSearch
	for len(s) > 0 {
		s = strings.TrimLeft(s, " \t\r\n")
		if s == "" {
			break
		}
		if s[0] == '"' {
			end := strings.IndexByte(s[1:], '"')
			var phrase string
			if end < 0 {
				phrase, s = s[1:], ""
			} else {
				phrase, s = s[1:end+1], s[end+2:]
			}
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				ts.phrases = append(ts.phrases, phrase)
			}
			continue
		}

		word := s
		if i := strings.IndexAny(s, " \t\r\n\""); i >= 0 {
			word, s = s[:i], s[i:]
		} else {
			s = ""
		}
		switch {
		case strings.HasPrefix(word, "-") && len(word) > 1:
			ts.negated = append(ts.negated, word[1:])
		case word != "-":
			ts.terms = append(ts.terms, word)
		}
	}
	return ts
}

// clause renders a predicate over the services.search column. Placeholders
// start at $next. A search with nothing positive to match yields FALSE.
func (ts textSearch) clause(next int) (string, []any) {
	var (
		parts []string
		args  []any
	)
	param := func(fn, v string) string {
		args = append(args, v)
		p := fmt.Sprintf("%s('english', $%d)", fn, next)
		next++
		return p
	}

	switch {
	case len(ts.phrases) > 0:
		for _, p := range ts.phrases {
			parts = append(parts, param("phraseto_tsquery", p))
		}
	case len(ts.terms) > 0:
		alts := make([]string, 0, len(ts.terms))
		for _, t := range ts.terms {
			alts = append(alts, param("plainto_tsquery", t))
		}
		parts = append(parts, "("+strings.Join(alts, " || ")+")")
	default:
		return "FALSE", nil
	}

	for _, n := range ts.negated {
		parts = append(parts, "!!"+param("plainto_tsquery", n))
	}

	return "search @@ (" + strings.Join(parts, " && ") + ")", args
}

func listSQL(q Query) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString("SELECT id, doc FROM services")
	if q.Search != "" {
		where, whereArgs := parseTextSearch(q.Search).clause(1)
		b.WriteString(" WHERE ")
		b.WriteString(where)
		args = whereArgs
	}
	if q.Sort == SortPriceAsc {
		b.WriteString(" ORDER BY price ASC NULLS FIRST, id")
	} else {
		b.WriteString(" ORDER BY price DESC NULLS LAST, id")
	}
	return b.String(), args
}
