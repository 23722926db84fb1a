package dataset

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Searcher ranks datasets by token overlap between a natural language query
// and each dataset's name, header and leading rows.
type Searcher struct {
	store   *Store
	maxRows int
}

// Match is one ranked dataset hit.
type Match struct {
	Filename string   `json:"filename"`
	Score    float64  `json:"score"`
	Columns  []string `json:"columns"`
}

// NewSearcher constructs a searcher over the store; maxRows bounds how many
// rows per dataset contribute tokens.
func NewSearcher(store *Store, maxRows int) *Searcher {
	if maxRows <= 0 {
		maxRows = 20
	}
	return &Searcher{store: store, maxRows: maxRows}
}

// Search returns the top-limit datasets ranked by query token overlap.
func (s *Searcher) Search(query string, limit int) ([]Match, error) {
	if s == nil || s.store == nil {
		return nil, errors.New("dataset searcher unavailable")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	if limit <= 0 {
		limit = 5
	}

	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return nil, errors.New("query too short")
	}

	names, err := s.store.List()
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(names))
	for _, name := range names {
		frame, err := s.store.Load(name)
		if err != nil {
			continue
		}
		score := overlapScore(qTokens, tokenize(frameText(frame, s.maxRows)))
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{
			Filename: name,
			Score:    score,
			Columns:  frame.Columns(),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Filename < matches[j].Filename
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func frameText(frame *Frame, maxRows int) string {
	var b strings.Builder
	b.WriteString(frame.Filename)
	b.WriteString(" ")
	b.WriteString(strings.Join(frame.Columns(), " "))
	for i, record := range frame.Head(maxRows) {
		if i >= maxRows {
			break
		}
		for _, v := range record {
			fmt.Fprintf(&b, " %v", v)
		}
	}
	return b.String()
}

func overlapScore(query, doc []string) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(doc))
	for _, t := range doc {
		seen[t] = struct{}{}
	}
	var overlap int
	for _, q := range query {
		if _, ok := seen[q]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(query))
}

var tokenRe = regexp.MustCompile(`[A-Za-z0-9_]+`)

func tokenize(s string) []string {
	matches := tokenRe.FindAllString(strings.ToLower(s), -1)
	if len(matches) == 0 {
		return nil
	}
	return matches
}
