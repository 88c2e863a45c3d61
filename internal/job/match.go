package job

import (
	"strings"

	"github.com/adityawiguna/jobscout-api/internal/scraper"
)

const (
	baseScore          = 50
	easyApplyBonus     = 10
	priorityCityBonus  = 5
	recentPostingBonus = 15
	maxScore           = 100
)

// MatchScore ranks how well a scraped listing fits the originating search:
// a fixed base, plus bonuses for one-click application, a priority city, and
// day-scale posting recency. Always within [0,100].
func MatchScore(card scraper.JobCard, priorityCities []string) int {
	score := baseScore

	if card.EasyApply {
		score += easyApplyBonus
	}

	location := strings.ToLower(card.Location)
	for _, city := range priorityCities {
		if city != "" && strings.Contains(location, strings.ToLower(city)) {
			score += priorityCityBonus
			break
		}
	}

	if postedRecently(card.PostedText) {
		score += recentPostingBonus
	}

	if score > maxScore {
		score = maxScore
	}
	return score
}

// postedRecently reports whether the posted-time text is on a day scale or
// finer ("2 days ago", "5 hours ago") rather than weeks or months.
func postedRecently(postedText string) bool {
	t := strings.ToLower(postedText)
	if strings.Contains(t, "week") || strings.Contains(t, "month") {
		return false
	}
	return strings.Contains(t, "day") || strings.Contains(t, "hour") || strings.Contains(t, "minute") || strings.Contains(t, "just now")
}
