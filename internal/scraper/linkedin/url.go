package linkedin

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/adityawiguna/jobscout-api/internal/session"
)

const (
	searchBaseURL = "https://www.linkedin.com/jobs/search/"
	jobsPerPage   = 25
)

// LinkedIn filter codes. Unknown values are omitted rather than rejected so
// the URL stays valid for any stored parameter snapshot.
var experienceCodes = map[string]string{
	"internship": "1",
	"entry":      "2",
	"associate":  "3",
	"mid_senior": "4",
	"director":   "5",
	"executive":  "6",
}

var jobTypeCodes = map[string]string{
	"full_time":  "F",
	"part_time":  "P",
	"contract":   "C",
	"temporary":  "T",
	"internship": "I",
	"volunteer":  "V",
}

var datePostedCodes = map[string]string{
	"past_24_hours": "r86400",
	"past_week":     "r604800",
	"past_month":    "r2592000",
}

// SearchURL builds the search-results URL for a parameter snapshot. The
// mapping is deterministic: the same params always yield the same URL
// (url.Values encodes keys in sorted order).
func SearchURL(p session.SearchParams) string {
	v := url.Values{}
	v.Set("keywords", strings.Join(p.Keywords, " "))
	if len(p.Locations) > 0 {
		v.Set("location", p.Locations[0])
	}
	if code, ok := experienceCodes[p.ExperienceLevel]; ok {
		v.Set("f_E", code)
	}
	if len(p.JobTypes) > 0 {
		codes := make([]string, 0, len(p.JobTypes))
		for _, jt := range p.JobTypes {
			if code, ok := jobTypeCodes[jt]; ok {
				codes = append(codes, code)
			}
		}
		if len(codes) > 0 {
			v.Set("f_JT", strings.Join(codes, ","))
		}
	}
	if code, ok := datePostedCodes[p.DatePosted]; ok {
		v.Set("f_TPR", code)
	}
	if p.RemoteOnly {
		v.Set("f_WT", "2")
	}
	if p.EasyApplyOnly {
		v.Set("f_AL", "true")
	}
	return searchBaseURL + "?" + v.Encode()
}

// pageURL rewrites the result-offset parameter for a direct jump to the
// 1-based page n. Fallback for when the pagination control cannot be
// clicked.
func pageURL(base string, n int) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("start", strconv.Itoa((n-1)*jobsPerPage))
	u.RawQuery = q.Encode()
	return u.String()
}
