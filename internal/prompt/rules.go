package prompt

import "strings"

// Rule is a keyword-triggered canned reply checked before calling upstream.
// Rules are evaluated in order; the first match wins.
type Rule struct {
	Match func(text string) bool
	Reply string
}

func contains(substr string) func(string) bool {
	return func(text string) bool {
		return strings.Contains(strings.ToLower(text), substr)
	}
}

// DefaultRules are the receptionist's instant answers for questions that
// never need the model: opening hours and contact details.
func DefaultRules() []Rule {
	return []Rule{
		{
			Match: contains("hours"),
			Reply: "We’re open Monday through Friday, 8 AM to 5 PM.",
		},
		{
			Match: contains("contact"),
			Reply: "You can reach us at support@greatowlmarketing.com.",
		},
	}
}

// MatchRule returns the first matching rule's reply, or "" when no rule fires.
func MatchRule(rules []Rule, text string) string {
	for _, r := range rules {
		if r.Match(text) {
			return r.Reply
		}
	}
	return ""
}
