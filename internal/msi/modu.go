package msi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/njoerd114/msisync/internal/model"
)

// MODU is one mobile offshore drilling unit position report.
type MODU struct {
	Name          string
	Date          time.Time
	Latitude      float64
	Longitude     float64
	NavArea       string
	Region        string
	RigStatus     string
	SpecialStatus string
}

// MODUDate is the filterable/sortable date property of the MODU feed.
var MODUDate = model.Property{Name: "Date", Key: "date", Type: model.TypeDate}

// MODUName is the rig-name property.
var MODUName = model.Property{Name: "Name", Key: "name", Type: model.TypeString}

// MODULocation is the location pseudo-property used by geo filters.
var MODULocation = model.Property{Name: "Location", Key: "location", Type: model.TypeLocation}

// MODUSchema instantiates the engine for the MODU feed.
func MODUSchema() *model.Schema[MODU] {
	return &model.Schema[MODU]{
		Key:      "modu",
		Name:     "MODU",
		Table:    "modus",
		ArrayKey: "modu",
		SortHint: "date",
		Fields: []model.Field{
			{Key: "name", Column: "name", Type: model.TypeString},
			{Key: "date", Column: "date", Type: model.TypeDate},
			{Key: "latitude", Column: "latitude", Type: model.TypeLatitude},
			{Key: "longitude", Column: "longitude", Type: model.TypeLongitude},
			{Key: "navArea", Column: "nav_area", Type: model.TypeEnumeration},
			{Key: "region", Column: "region", Type: model.TypeString},
			{Key: "rigStatus", Column: "rig_status", Type: model.TypeEnumeration},
			{Key: "specialStatus", Column: "special_status", Type: model.TypeString},
		},
		NaturalKeyField: "name",
		OrderingField:   "date",
		LatField:        "latitude",
		LonField:        "longitude",
		DefaultSort: []model.SortParameter{
			{Property: MODUDate, Ascending: false, Section: true},
		},
		Decode: func(data []byte) (MODU, error) {
			var w struct {
				Name          string  `json:"name"`
				Date          string  `json:"date"`
				Latitude      float64 `json:"latitude"`
				Longitude     float64 `json:"longitude"`
				NavArea       string  `json:"navArea"`
				Region        string  `json:"region"`
				RigStatus     string  `json:"rigStatus"`
				SpecialStatus string  `json:"specialStatus"`
			}
			if err := json.Unmarshal(data, &w); err != nil {
				return MODU{}, err
			}
			return MODU{
				Name:          w.Name,
				Date:          parseDate(w.Date),
				Latitude:      w.Latitude,
				Longitude:     w.Longitude,
				NavArea:       w.NavArea,
				Region:        w.Region,
				RigStatus:     w.RigStatus,
				SpecialStatus: w.SpecialStatus,
			}, nil
		},
		Valid: func(m MODU) bool {
			return m.Name != "" && (m.Latitude != 0 || m.Longitude != 0)
		},
		Values: func(m MODU) map[string]any {
			return map[string]any{
				"name":          m.Name,
				"date":          m.Date,
				"latitude":      m.Latitude,
				"longitude":     m.Longitude,
				"navArea":       m.NavArea,
				"region":        m.Region,
				"rigStatus":     m.RigStatus,
				"specialStatus": m.SpecialStatus,
			}
		},
		FromValues: func(v map[string]any) MODU {
			return MODU{
				Name:          mapString(v, "name"),
				Date:          mapDate(v, "date"),
				Latitude:      mapFloat(v, "latitude"),
				Longitude:     mapFloat(v, "longitude"),
				NavArea:       mapString(v, "navArea"),
				Region:        mapString(v, "region"),
				RigStatus:     mapString(v, "rigStatus"),
				SpecialStatus: mapString(v, "specialStatus"),
			}
		},
		Summary: func(m MODU) string {
			if m.RigStatus == "" {
				return m.Name
			}
			return fmt.Sprintf("%s (%s)", m.Name, m.RigStatus)
		},
		SinceParams: func(newest *MODU, now time.Time) url.Values {
			var anchor time.Time
			if newest != nil {
				anchor = newest.Date
			}
			return dateWindow(anchor, now)
		},
	}
}
