package search

import "strings"

// parsedQuery is a tokenized search request: bare terms get prefix
// matching, quoted substrings are passed through verbatim as phrases.
type parsedQuery struct {
	terms   []string
	phrases []string
}

func (p parsedQuery) empty() bool {
	return len(p.terms) == 0 && len(p.phrases) == 0
}

// parseQuery splits text into bare terms and double-quoted phrases.
// An unterminated quote is treated as running to the end of the text.
func parseQuery(text string) parsedQuery {
	var pq parsedQuery
	rest := text
	for {
		start := strings.IndexByte(rest, '"')
		if start < 0 {
			pq.terms = append(pq.terms, strings.Fields(rest)...)
			break
		}
		pq.terms = append(pq.terms, strings.Fields(rest[:start])...)
		rest = rest[start+1:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			if ph := strings.TrimSpace(rest); ph != "" {
				pq.phrases = append(pq.phrases, ph)
			}
			break
		}
		if ph := strings.TrimSpace(rest[:end]); ph != "" {
			pq.phrases = append(pq.phrases, ph)
		}
		rest = rest[end+1:]
	}
	return pq
}
