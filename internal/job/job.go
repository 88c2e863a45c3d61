// Package job defines the scraped-job domain: the normalized listing record
// a session produces, its one user-editable field (application status), and
// the match-score heuristic.
package job

import (
	"time"

	"github.com/google/uuid"

	"github.com/adityawiguna/jobscout-api/internal/scraper"
)

// ApplicationStatus tracks what the user did with a listing after scraping.
// It is the only field of a scraped job that remains mutable.
type ApplicationStatus string

const (
	StatusNotApplied ApplicationStatus = "not_applied"
	StatusApplied    ApplicationStatus = "applied"
	StatusInReview   ApplicationStatus = "in_review"
	StatusInterview  ApplicationStatus = "interview"
	StatusRejected   ApplicationStatus = "rejected"
	StatusOffer      ApplicationStatus = "offer"
)

// ParseApplicationStatus converts a raw string, rejecting unknown values.
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	st := ApplicationStatus(s)
	switch st {
	case StatusNotApplied, StatusApplied, StatusInReview, StatusInterview, StatusRejected, StatusOffer:
		return st, true
	}
	return "", false
}

// Insight tags attached to a listing.
const (
	InsightEasyApply = "easy_apply"
	InsightPromoted  = "promoted"
)

type Job struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`

	SourceURL  string `json:"sourceUrl"`
	Title      string `json:"title"`
	Company    string `json:"company"`
	Location   string `json:"location"`
	SalaryText string `json:"salaryText,omitempty"`
	PostedText string `json:"postedText,omitempty"`

	MatchScore        int               `json:"matchScore"`
	EasyApply         bool              `json:"easyApply"`
	ApplicationStatus ApplicationStatus `json:"applicationStatus"`
	Insights          []string          `json:"insights,omitempty"`

	ScrapedAt time.Time `json:"scrapedAt"`
}

// FromCard normalizes a raw job card into a job record tagged with its
// owning session.
func FromCard(card scraper.JobCard, sessionID, userID string, priorityCities []string) Job {
	j := Job{
		ID:                uuid.NewString(),
		SessionID:         sessionID,
		UserID:            userID,
		SourceURL:         card.DetailURL,
		Title:             card.Title,
		Company:           card.Company,
		Location:          card.Location,
		SalaryText:        card.SalaryText,
		PostedText:        card.PostedText,
		MatchScore:        MatchScore(card, priorityCities),
		EasyApply:         card.EasyApply,
		ApplicationStatus: StatusNotApplied,
		ScrapedAt:         time.Now().UTC(),
	}
	if card.EasyApply {
		j.Insights = append(j.Insights, InsightEasyApply)
	}
	if card.Promoted {
		j.Insights = append(j.Insights, InsightPromoted)
	}
	return j
}
