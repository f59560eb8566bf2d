package msi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/njoerd114/msisync/internal/model"
)

// Radiobeacon is one radiobeacon entry from the list-of-lights volumes.
// Feature numbers repeat across volumes, so the natural key combines feature
// number and volume.
type Radiobeacon struct {
	FeatureNumber string
	VolumeNumber  string
	Name          string
	Heading       string
	Latitude      float64
	Longitude     float64
	Frequency     string
	Range         string
	NoticeNumber  int64
}

// RadiobeaconHeading is the geopolitical-heading property that sections the
// radiobeacon list.
var RadiobeaconHeading = model.Property{Name: "Region", Key: "heading", Type: model.TypeString}

// RadiobeaconName is the station-name property.
var RadiobeaconName = model.Property{Name: "Name", Key: "name", Type: model.TypeString}

// RadiobeaconLocation is the location pseudo-property used by geo filters.
var RadiobeaconLocation = model.Property{Name: "Location", Key: "location", Type: model.TypeLocation}

// RadiobeaconSchema instantiates the engine for the radiobeacon feed.
func RadiobeaconSchema() *model.Schema[Radiobeacon] {
	return &model.Schema[Radiobeacon]{
		Key:      "radiobeacon",
		Name:     "Radiobeacon",
		Table:    "radiobeacons",
		ArrayKey: "radiobeacons",
		SortHint: "geopoliticalHeading",
		Fields: []model.Field{
			{Key: "key", Column: "key", Type: model.TypeString},
			{Key: "featureNumber", Column: "feature_number", Type: model.TypeString},
			{Key: "volumeNumber", Column: "volume_number", Type: model.TypeString},
			{Key: "name", Column: "name", Type: model.TypeString},
			{Key: "heading", Column: "heading", Type: model.TypeString},
			{Key: "latitude", Column: "latitude", Type: model.TypeLatitude},
			{Key: "longitude", Column: "longitude", Type: model.TypeLongitude},
			{Key: "frequency", Column: "frequency", Type: model.TypeString},
			{Key: "range", Column: "range", Type: model.TypeString},
			{Key: "noticeNumber", Column: "notice_number", Type: model.TypeInt},
		},
		NaturalKeyField: "key",
		OrderingField:   "noticeNumber",
		LatField:        "latitude",
		LonField:        "longitude",
		DefaultSort: []model.SortParameter{
			{Property: RadiobeaconHeading, Ascending: true, Section: true},
			{Property: RadiobeaconName, Ascending: true},
		},
		Decode: func(data []byte) (Radiobeacon, error) {
			var w struct {
				FeatureNumber json.Number `json:"featureNumber"`
				VolumeNumber  string      `json:"volumeNumber"`
				Name          string      `json:"name"`
				Heading       string      `json:"geopoliticalHeading"`
				Latitude      float64     `json:"latitude"`
				Longitude     float64     `json:"longitude"`
				Frequency     string      `json:"frequency"`
				Range         string      `json:"range"`
				NoticeNumber  int64       `json:"noticeNumber"`
			}
			if err := json.Unmarshal(data, &w); err != nil {
				return Radiobeacon{}, err
			}
			return Radiobeacon{
				FeatureNumber: w.FeatureNumber.String(),
				VolumeNumber:  w.VolumeNumber,
				Name:          w.Name,
				Heading:       w.Heading,
				Latitude:      w.Latitude,
				Longitude:     w.Longitude,
				Frequency:     w.Frequency,
				Range:         w.Range,
				NoticeNumber:  w.NoticeNumber,
			}, nil
		},
		Valid: func(r Radiobeacon) bool {
			return r.FeatureNumber != "" && r.VolumeNumber != "" &&
				(r.Latitude != 0 || r.Longitude != 0)
		},
		Values: func(r Radiobeacon) map[string]any {
			return map[string]any{
				"key":           r.FeatureNumber + " " + r.VolumeNumber,
				"featureNumber": r.FeatureNumber,
				"volumeNumber":  r.VolumeNumber,
				"name":          r.Name,
				"heading":       r.Heading,
				"latitude":      r.Latitude,
				"longitude":     r.Longitude,
				"frequency":     r.Frequency,
				"range":         r.Range,
				"noticeNumber":  r.NoticeNumber,
			}
		},
		FromValues: func(v map[string]any) Radiobeacon {
			return Radiobeacon{
				FeatureNumber: mapString(v, "featureNumber"),
				VolumeNumber:  mapString(v, "volumeNumber"),
				Name:          mapString(v, "name"),
				Heading:       mapString(v, "heading"),
				Latitude:      mapFloat(v, "latitude"),
				Longitude:     mapFloat(v, "longitude"),
				Frequency:     mapString(v, "frequency"),
				Range:         mapString(v, "range"),
				NoticeNumber:  mapInt(v, "noticeNumber"),
			}
		},
		Summary: func(r Radiobeacon) string {
			if r.Frequency == "" {
				return fmt.Sprintf("%s %s", r.FeatureNumber, r.Name)
			}
			return fmt.Sprintf("%s %s (%s)", r.FeatureNumber, r.Name, r.Frequency)
		},
		SinceParams: noticeWindow[Radiobeacon](func(r *Radiobeacon) int64 { return r.NoticeNumber }),
	}
}

// noticeWindow builds SinceParams for the list-of-lights feeds, which window
// on the publication notice number rather than a date.
func noticeWindow[M any](notice func(*M) int64) func(*M, time.Time) url.Values {
	return func(newest *M, _ time.Time) url.Values {
		v := url.Values{}
		if newest != nil {
			if n := notice(newest); n > 0 {
				v.Set("minNoticeNumber", strconv.FormatInt(n, 10))
			}
		}
		return v
	}
}
