package classifier

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// General is returned when no keyword matches.
const General = "general"

// Category pairs a topic label with the substrings that vote for it.
type Category struct {
	Name     string
	Keywords []string
}

// Categories is scored in this order. On equal hit counts the earlier entry
// wins, so the slice order is the tie-break priority: business, politics,
// technology, science, sports, entertainment.
var Categories = []Category{
	{Name: "business", Keywords: []string{
		"business", "market", "stock", "économie", "economy", "finance",
		"bank", "trade", "invest", "company", "ceo", "entreprise",
		"dollar", "euro", "bourse", "croissance",
	}},
	{Name: "politics", Keywords: []string{
		"politic", "government", "election", "president", "minister",
		"parlement", "vote", "law", "congress", "senate", "diplomacy",
		"gouvernement", "ministre", "député",
	}},
	{Name: "technology", Keywords: []string{
		"ai", "intelligence artificielle", "tech", "technolog", "software",
		"app", "digital", "cyber", "robot", "internet", "data", "algorithm",
		"startup", "google", "apple", "microsoft", "meta", "tesla",
	}},
	{Name: "science", Keywords: []string{
		"science", "research", "study", "scientist", "discover",
		"space", "nasa", "climat", "climate", "environment", "energy",
		"médical", "health", "covid", "vaccine", "cancer",
	}},
	{Name: "sports", Keywords: []string{
		"sport", "football", "basketball", "tennis", "match", "game",
		"player", "team", "champion", "olympic", "world cup", "league",
	}},
	{Name: "entertainment", Keywords: []string{
		"film", "movie", "music", "actor", "celebrity", "hollywood",
		"series", "tv", "concert", "album", "netflix", "disney",
	}},
}

// Classify returns the supplied category when present, otherwise the
// highest-scoring keyword category for title+summary, or General.
func Classify(title, summary, supplied string) string {
	if supplied = strings.TrimSpace(supplied); supplied != "" {
		return supplied
	}

	text := cases.Lower(language.Und).String(title + " " + summary)

	best, bestScore := General, 0
	for _, cat := range Categories {
		if score := Score(text, cat.Keywords); score > bestScore {
			best, bestScore = cat.Name, score
		}
	}
	return best
}

// Score counts how many keywords occur in text. Each keyword counts once.
func Score(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}
