package msi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/njoerd114/msisync/internal/model"
)

// ASAM is one anti-shipping-activity message: a dated, positioned hazard
// report such as a piracy incident.
type ASAM struct {
	Reference   string
	Date        time.Time
	Latitude    float64
	Longitude   float64
	NavArea     string
	Subregion   string
	Hostility   string
	Victim      string
	Description string
}

// ASAMDate is the filterable/sortable date property of the ASAM feed.
var ASAMDate = model.Property{Name: "Date", Key: "date", Type: model.TypeDate}

// ASAMLocation is the location pseudo-property used by geo filters.
var ASAMLocation = model.Property{Name: "Location", Key: "location", Type: model.TypeLocation}

// ASAMSchema instantiates the engine for the ASAM feed.
func ASAMSchema() *model.Schema[ASAM] {
	return &model.Schema[ASAM]{
		Key:      "asam",
		Name:     "ASAM",
		Table:    "asams",
		ArrayKey: "asam",
		SortHint: "date",
		Fields: []model.Field{
			{Key: "reference", Column: "reference", Type: model.TypeString},
			{Key: "date", Column: "date", Type: model.TypeDate},
			{Key: "latitude", Column: "latitude", Type: model.TypeLatitude},
			{Key: "longitude", Column: "longitude", Type: model.TypeLongitude},
			{Key: "navArea", Column: "nav_area", Type: model.TypeEnumeration},
			{Key: "subregion", Column: "subregion", Type: model.TypeString},
			{Key: "hostility", Column: "hostility", Type: model.TypeString},
			{Key: "victim", Column: "victim", Type: model.TypeString},
			{Key: "description", Column: "description", Type: model.TypeString},
		},
		NaturalKeyField: "reference",
		OrderingField:   "date",
		LatField:        "latitude",
		LonField:        "longitude",
		DefaultSort: []model.SortParameter{
			{Property: ASAMDate, Ascending: false, Section: true},
		},
		Decode: func(data []byte) (ASAM, error) {
			var w struct {
				Reference   string  `json:"reference"`
				Date        string  `json:"date"`
				Latitude    float64 `json:"latitude"`
				Longitude   float64 `json:"longitude"`
				NavArea     string  `json:"navArea"`
				Subregion   string  `json:"subreg"`
				Hostility   string  `json:"hostility"`
				Victim      string  `json:"victim"`
				Description string  `json:"description"`
			}
			if err := json.Unmarshal(data, &w); err != nil {
				return ASAM{}, err
			}
			return ASAM{
				Reference:   w.Reference,
				Date:        parseDate(w.Date),
				Latitude:    w.Latitude,
				Longitude:   w.Longitude,
				NavArea:     w.NavArea,
				Subregion:   w.Subregion,
				Hostility:   w.Hostility,
				Victim:      w.Victim,
				Description: w.Description,
			}, nil
		},
		Valid: func(a ASAM) bool {
			return a.Reference != "" && (a.Latitude != 0 || a.Longitude != 0)
		},
		Values: func(a ASAM) map[string]any {
			return map[string]any{
				"reference":   a.Reference,
				"date":        a.Date,
				"latitude":    a.Latitude,
				"longitude":   a.Longitude,
				"navArea":     a.NavArea,
				"subregion":   a.Subregion,
				"hostility":   a.Hostility,
				"victim":      a.Victim,
				"description": a.Description,
			}
		},
		FromValues: func(v map[string]any) ASAM {
			return ASAM{
				Reference:   mapString(v, "reference"),
				Date:        mapDate(v, "date"),
				Latitude:    mapFloat(v, "latitude"),
				Longitude:   mapFloat(v, "longitude"),
				NavArea:     mapString(v, "navArea"),
				Subregion:   mapString(v, "subregion"),
				Hostility:   mapString(v, "hostility"),
				Victim:      mapString(v, "victim"),
				Description: mapString(v, "description"),
			}
		},
		Summary: func(a ASAM) string {
			if a.Victim == "" {
				return fmt.Sprintf("%s: %s", a.Reference, a.Hostility)
			}
			return fmt.Sprintf("%s: %s against %s", a.Reference, a.Hostility, a.Victim)
		},
		SinceParams: func(newest *ASAM, now time.Time) url.Values {
			var anchor time.Time
			if newest != nil {
				anchor = newest.Date
			}
			return dateWindow(anchor, now)
		},
	}
}
