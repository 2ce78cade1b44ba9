package corpus

import "strings"

type categoryRule struct {
	name     string
	keywords []string
}

// categoryRules are checked in order; the first match wins.
var categoryRules = []categoryRule{
	{"Website Agent", []string{"website agent"}},
	{"Social Media Agent", []string{"social media agent"}},
	{"Messenger Agent", []string{"messenger agent"}},
	{"Call Agent", []string{"call agent"}},
	{"GPT Store", []string{"gpt store", "chatgpt"}},
	{"Electronics & Tech", []string{"electronics", "tech"}},
	{"Fashion & Apparel", []string{"fashion", "apparel"}},
	{"Home & Garden", []string{"home", "garden"}},
	{"Agencies & Partners", []string{"agency", "partner"}},
}

// Categorize returns the product category a piece of text talks about, or "".
func Categorize(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.name
			}
		}
	}
	return ""
}
