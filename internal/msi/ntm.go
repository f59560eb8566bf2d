package msi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/njoerd114/msisync/internal/model"
)

// Notice is one weekly notice to mariners. The notice number encodes the
// publication week as YYYYWW, e.g. 202408 for week 8 of 2024.
type Notice struct {
	NoticeNumber    int64
	Week            int64
	Year            int64
	PublicationDate time.Time
	Title           string
}

// NoticeNumber is the filterable/sortable notice-number property.
var NoticeNumber = model.Property{Name: "Notice Number", Key: "noticeNumber", Type: model.TypeInt}

// NoticeSchema instantiates the engine for the notice-to-mariners feed. The
// list sections by publication week, rendered as period headers.
func NoticeSchema() *model.Schema[Notice] {
	return &model.Schema[Notice]{
		Key:      "ntm",
		Name:     "Notice to Mariners",
		Table:    "notices",
		ArrayKey: "pubs",
		SortHint: "noticeNumber",
		Fields: []model.Field{
			{Key: "noticeNumber", Column: "notice_number", Type: model.TypeInt},
			{Key: "week", Column: "week", Type: model.TypeInt},
			{Key: "year", Column: "year", Type: model.TypeInt},
			{Key: "publicationDate", Column: "publication_date", Type: model.TypeDate},
			{Key: "title", Column: "title", Type: model.TypeString},
		},
		NaturalKeyField: "noticeNumber",
		OrderingField:   "noticeNumber",
		DefaultSort: []model.SortParameter{
			{Property: NoticeNumber, Ascending: false, Section: true},
		},
		PeriodSection: true,
		SectionFormat: func(f model.Field, v any) string {
			if f.Key != "noticeNumber" {
				return model.SectionValue(f.Type, v)
			}
			n, _ := v.(int64)
			if n == 0 {
				return ""
			}
			return fmt.Sprintf("%d week %02d", n/100, n%100)
		},
		Decode: func(data []byte) (Notice, error) {
			var w struct {
				NoticeNumber    int64  `json:"noticeNumber"`
				Week            string `json:"noticeWeek"`
				Year            string `json:"noticeYear"`
				PublicationDate string `json:"publicationDate"`
				Title           string `json:"title"`
			}
			if err := json.Unmarshal(data, &w); err != nil {
				return Notice{}, err
			}
			week, _ := strconv.ParseInt(w.Week, 10, 64)
			year, _ := strconv.ParseInt(w.Year, 10, 64)
			return Notice{
				NoticeNumber:    w.NoticeNumber,
				Week:            week,
				Year:            year,
				PublicationDate: parseDate(w.PublicationDate),
				Title:           w.Title,
			}, nil
		},
		Valid: func(n Notice) bool {
			return n.NoticeNumber != 0
		},
		Values: func(n Notice) map[string]any {
			return map[string]any{
				"noticeNumber":    n.NoticeNumber,
				"week":            n.Week,
				"year":            n.Year,
				"publicationDate": n.PublicationDate,
				"title":           n.Title,
			}
		},
		FromValues: func(v map[string]any) Notice {
			return Notice{
				NoticeNumber:    mapInt(v, "noticeNumber"),
				Week:            mapInt(v, "week"),
				Year:            mapInt(v, "year"),
				PublicationDate: mapDate(v, "publicationDate"),
				Title:           mapString(v, "title"),
			}
		},
		Summary: func(n Notice) string {
			if n.Title == "" {
				return fmt.Sprintf("Notice %d/%02d", n.Year, n.Week)
			}
			return fmt.Sprintf("Notice %d/%02d: %s", n.Year, n.Week, n.Title)
		},
		SinceParams: noticeWindow[Notice](func(n *Notice) int64 { return n.NoticeNumber }),
	}
}
