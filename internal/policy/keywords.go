package policy

import "strings"

// Reason prefixes reported by CheckKeywords.
const (
	ReasonOK               = "ok"
	ReasonBlockedKeyword   = "blocked_keyword"
	ReasonBlacklistKeyword = "blacklist_keyword"
)

// Verdict is the outcome of a content keyword check.
type Verdict struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason"`
}

// CheckKeywords screens text against the blocked list first and the blacklist
// second using case-insensitive substring matching. The first matching term in
// list order determines the reason.
func CheckKeywords(text string, blacklist, blocked []string) Verdict {
	normalized := strings.ToLower(text)
	if term, ok := firstHit(normalized, blocked); ok {
		return Verdict{Blocked: true, Reason: ReasonBlockedKeyword + ":" + term}
	}
	if term, ok := firstHit(normalized, blacklist); ok {
		return Verdict{Blocked: true, Reason: ReasonBlacklistKeyword + ":" + term}
	}
	return Verdict{Blocked: false, Reason: ReasonOK}
}

func firstHit(normalized string, terms []string) (string, bool) {
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(term)) {
			return term, true
		}
	}
	return "", false
}
