package msi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/njoerd114/msisync/internal/model"
)

// Warning is one broadcast navigational warning. Warnings have no position of
// their own; the text carries the affected area. The natural key is the
// "number/year (area)" composite, since numbers restart every year per
// broadcast area.
type Warning struct {
	Number    int64
	Year      int64
	Area      string
	Subregion string
	Text      string
	Status    string
	Authority string
	IssueDate time.Time
}

// CompositeKey renders the warning's natural key, e.g. "147/2024 (NAVAREA IV)".
func (w Warning) CompositeKey() string {
	return fmt.Sprintf("%d/%d (%s)", w.Number, w.Year, w.Area)
}

// WarningIssueDate is the filterable/sortable issue-date property.
var WarningIssueDate = model.Property{Name: "Issue Date", Key: "issueDate", Type: model.TypeDate}

// WarningArea is the broadcast-area property.
var WarningArea = model.Property{Name: "Area", Key: "area", Type: model.TypeEnumeration}

// WarningSchema instantiates the engine for the navigational-warning feed.
func WarningSchema() *model.Schema[Warning] {
	return &model.Schema[Warning]{
		Key:      "warning",
		Name:     "Navigational Warning",
		Table:    "warnings",
		ArrayKey: "broadcast-warn",
		SortHint: "issueDate",
		Fields: []model.Field{
			{Key: "key", Column: "key", Type: model.TypeString},
			{Key: "number", Column: "number", Type: model.TypeInt},
			{Key: "year", Column: "year", Type: model.TypeInt},
			{Key: "area", Column: "area", Type: model.TypeEnumeration},
			{Key: "subregion", Column: "subregion", Type: model.TypeString},
			{Key: "text", Column: "text", Type: model.TypeString},
			{Key: "status", Column: "status", Type: model.TypeEnumeration},
			{Key: "authority", Column: "authority", Type: model.TypeString},
			{Key: "issueDate", Column: "issue_date", Type: model.TypeDate},
		},
		NaturalKeyField: "key",
		OrderingField:   "issueDate",
		DefaultSort: []model.SortParameter{
			{Property: WarningIssueDate, Ascending: false, Section: true},
		},
		Decode: func(data []byte) (Warning, error) {
			var w struct {
				Number    int64  `json:"msgNumber"`
				Year      int64  `json:"msgYear"`
				Area      string `json:"navArea"`
				Subregion string `json:"subregion"`
				Text      string `json:"text"`
				Status    string `json:"status"`
				Authority string `json:"authority"`
				IssueDate string `json:"issueDate"`
			}
			if err := json.Unmarshal(data, &w); err != nil {
				return Warning{}, err
			}
			return Warning{
				Number:    w.Number,
				Year:      w.Year,
				Area:      w.Area,
				Subregion: w.Subregion,
				Text:      w.Text,
				Status:    w.Status,
				Authority: w.Authority,
				IssueDate: parseIssueDate(w.IssueDate),
			}, nil
		},
		Valid: func(w Warning) bool {
			return w.Number != 0 && w.Year != 0 && w.Area != ""
		},
		Values: func(w Warning) map[string]any {
			return map[string]any{
				"key":       w.CompositeKey(),
				"number":    w.Number,
				"year":      w.Year,
				"area":      w.Area,
				"subregion": w.Subregion,
				"text":      w.Text,
				"status":    w.Status,
				"authority": w.Authority,
				"issueDate": w.IssueDate,
			}
		},
		FromValues: func(v map[string]any) Warning {
			return Warning{
				Number:    mapInt(v, "number"),
				Year:      mapInt(v, "year"),
				Area:      mapString(v, "area"),
				Subregion: mapString(v, "subregion"),
				Text:      mapString(v, "text"),
				Status:    mapString(v, "status"),
				Authority: mapString(v, "authority"),
				IssueDate: mapDate(v, "issueDate"),
			}
		},
		Summary: func(w Warning) string {
			return w.CompositeKey()
		},
		// The warning feed has no date-window parameters; active warnings are
		// fetched in full every pass and cancelled ones age out upstream.
		SinceParams: func(_ *Warning, _ time.Time) url.Values {
			return url.Values{"status": []string{"active"}}
		},
	}
}

var issueDateMonths = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// parseIssueDate parses the day-time-group layout warnings are stamped with,
// e.g. "011430Z JAN 2024". Zero time on failure.
func parseIssueDate(s string) time.Time {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) != 3 || len(parts[0]) != 7 || parts[0][6] != 'Z' {
		return time.Time{}
	}
	day, err1 := strconv.Atoi(parts[0][0:2])
	hour, err2 := strconv.Atoi(parts[0][2:4])
	minute, err3 := strconv.Atoi(parts[0][4:6])
	year, err4 := strconv.Atoi(parts[2])
	month, ok := issueDateMonths[strings.ToUpper(parts[1])]
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || !ok {
		return time.Time{}
	}
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}
