package classify

import (
	"regexp"
	"strings"
	"unicode"
)

// Tokenize lower-cases s and splits it on anything that is not a letter or
// digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var (
	quotedRE = regexp.MustCompile("[\"`]([^\"`]{2,60})[\"`]")
	pathRE   = regexp.MustCompile(`(?i)(?:^|[\s(,])((?:[\w.-]+/)*[\w.-]+\.(?:go|py|js|jsx|ts|tsx|json|toml|ya?ml|md|rst|txt|rs|java|kt|rb|php|cs|c|h|cpp|hpp|sh|cfg|ini|lock|mod|xml|gradle|sql|proto)|(?:[\w.-]+/)*(?:Dockerfile|Makefile|Gemfile|Procfile))\b`)
	identRE  = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\(?`)
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true, "were": true,
	"what": true, "which": true, "who": true, "how": true, "why": true, "when": true, "where": true,
	"does": true, "do": true, "did": true, "this": true, "that": true, "these": true, "those": true,
	"in": true, "on": true, "of": true, "for": true, "to": true, "and": true, "or": true, "with": true,
	"it": true, "its": true, "be": true, "by": true, "from": true, "there": true, "any": true,
	"can": true, "you": true, "me": true, "my": true, "i": true, "repo": true, "repository": true,
	"project": true, "code": true, "codebase": true, "use": true, "uses": true, "used": true,
	"show": true, "find": true, "tell": true, "about": true, "defined": true, "function": true,
	"functions": true, "class": true, "method": true, "file": true, "files": true, "search": true,
	"usage": true, "have": true, "has": true, "all": true, "list": true, "please": true,
}

// ExtractPaths returns file paths mentioned in a question, in order.
func ExtractPaths(question string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range pathRE.FindAllStringSubmatch(question, -1) {
		p := strings.Trim(strings.TrimPrefix(m[1], "./"), "/")
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ExtractSearchTerms picks up to max code-search terms from a question:
// quoted phrases first, then identifier-looking tokens, then remaining
// content words.
func ExtractSearchTerms(question string, max int) []string {
	return extractTerms(question, max, true)
}

const maxQuestionTerms = 3

// extractTerms is ExtractSearchTerms with the content-word pass optional.
func extractTerms(question string, max int, words bool) []string {
	if max <= 0 {
		max = 3
	}
	var out []string
	seen := map[string]bool{}
	add := func(t string) bool {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			return len(out) < max
		}
		seen[key] = true
		out = append(out, t)
		return len(out) < max
	}

	rest := question
	for _, m := range quotedRE.FindAllStringSubmatch(question, -1) {
		if !add(m[1]) {
			return out
		}
		rest = strings.Replace(rest, m[0], " ", 1)
	}
	paths := ExtractPaths(rest)
	for _, m := range identRE.FindAllStringSubmatch(rest, -1) {
		id := m[1]
		if partOfPath(id, paths) || !looksLikeIdentifier(id, strings.HasSuffix(m[0], "(")) {
			continue
		}
		if !add(id) {
			return out
		}
	}
	if len(out) > 0 || !words {
		return out
	}
	for _, tok := range Tokenize(rest) {
		if len(tok) < 4 || stopwords[tok] || ruleKeyword(tok) {
			continue
		}
		if !add(tok) {
			return out
		}
	}
	return out
}

// looksLikeIdentifier accepts snake_case, camelCase, dotted names and
// anything written as a call.
func looksLikeIdentifier(s string, call bool) bool {
	if call && len(s) > 1 && !stopwords[strings.ToLower(s)] {
		return true
	}
	if strings.Contains(s, "_") || strings.Contains(s, ".") {
		return true
	}
	hasLower, hasUpperAfterFirst := false, false
	for i, r := range s {
		if unicode.IsLower(r) {
			hasLower = true
		}
		if i > 0 && unicode.IsUpper(r) {
			hasUpperAfterFirst = true
		}
	}
	return hasLower && hasUpperAfterFirst
}

func partOfPath(id string, paths []string) bool {
	for _, p := range paths {
		if strings.Contains(p, id) {
			return true
		}
	}
	return false
}

func ruleKeyword(tok string) bool {
	for _, r := range DefaultRules {
		for _, k := range r.Keywords {
			if k == tok {
				return true
			}
		}
	}
	return false
}
