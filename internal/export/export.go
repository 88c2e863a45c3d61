// Package export turns scraped jobs into shareable spreadsheets. The Sink
// interface abstracts the spreadsheet backend so the orchestrator does not
// care whether rows land in a local workbook or a hosted sheet.
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/adityawiguna/jobscout-api/internal/job"
)

// Row is one spreadsheet row. Cells are written in order; a Link cell is
// rendered as a hyperlink by sinks that support it.
type Row []any

// Link is a cell that should render as a clickable hyperlink.
type Link struct {
	Text string
	URL  string
}

// SheetConfig names a new sheet and ties it to its owning session.
type SheetConfig struct {
	Title     string
	UserID    string
	SessionID string
}

// SheetRef identifies a created sheet: the ID addresses it in AppendRows,
// the URL is what users open.
type SheetRef struct {
	ID  string
	URL string
}

// Sink is a spreadsheet backend.
type Sink interface {
	CreateSheet(ctx context.Context, cfg SheetConfig) (*SheetRef, error)
	AppendRows(ctx context.Context, sheetID string, rows []Row) error
}

// Headers is the column layout every sink writes, in order.
var Headers = []string{
	"Company Logo",
	"Job Title",
	"Company",
	"Location",
	"Salary",
	"Posted",
	"Application Status",
	"Easy Apply",
	"Job URL",
	"Match Score",
	"Scraped Date",
	"Insights",
}

// RowFromJob maps a job record onto the Headers layout.
func RowFromJob(j job.Job) Row {
	easyApply := "No"
	if j.EasyApply {
		easyApply = "Yes"
	}
	return Row{
		"", // logo column is filled by backends that resolve company assets
		j.Title,
		j.Company,
		j.Location,
		j.SalaryText,
		j.PostedText,
		string(j.ApplicationStatus),
		easyApply,
		Link{Text: "View Job", URL: j.SourceURL},
		fmt.Sprintf("%d%%", j.MatchScore),
		j.ScrapedAt.Format("2006-01-02"),
		strings.Join(j.Insights, ", "),
	}
}

// RowsFromJobs maps a batch of jobs.
func RowsFromJobs(jobs []job.Job) []Row {
	rows := make([]Row, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, RowFromJob(j))
	}
	return rows
}
