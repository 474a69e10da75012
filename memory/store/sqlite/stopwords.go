package sqlite

import (
	"regexp"
	"strings"
)

// stopwords is the closed list stripped from SearchFTS queries before they
// reach FTS5. Keeping it closed (rather than deriving it from the corpus)
// matches the lexical index's other closed enumerations.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "to": true,
	"of": true, "in": true, "on": true, "at": true, "for": true, "with": true,
	"and": true, "or": true, "but": true, "my": true, "your": true, "i": true,
	"you": true, "it": true, "this": true, "that": true, "do": true,
	"does": true, "did": true, "can": true, "will": true, "would": true,
	"should": true, "about": true, "as": true, "by": true, "from": true,
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// ftsMatchExpr lowercases and tokenizes query, drops stopwords, and returns
// an FTS5 MATCH expression that matches any surviving term. An empty string
// means nothing survived filtering.
func ftsMatchExpr(query string) string {
	tokens := tokenPattern.FindAllString(strings.ToLower(query), -1)
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if stopwords[tok] {
			continue
		}
		terms = append(terms, `"`+tok+`"`)
	}
	if len(terms) == 0 {
		return ""
	}
	return strings.Join(terms, " OR ")
}
