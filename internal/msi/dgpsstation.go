package msi

import (
	"encoding/json"
	"fmt"

	"github.com/njoerd114/msisync/internal/model"
)

// DGPSStation is one differential-GPS station entry from the list-of-lights
// volumes. Keyed like radiobeacons: feature number plus volume.
type DGPSStation struct {
	FeatureNumber string
	VolumeNumber  string
	Name          string
	Heading       string
	StationID     string
	Latitude      float64
	Longitude     float64
	Frequency     string
	Range         string
	NoticeNumber  int64
}

// DGPSHeading is the geopolitical-heading property that sections the station
// list.
var DGPSHeading = model.Property{Name: "Region", Key: "heading", Type: model.TypeString}

// DGPSName is the station-name property.
var DGPSName = model.Property{Name: "Name", Key: "name", Type: model.TypeString}

// DGPSLocation is the location pseudo-property used by geo filters.
var DGPSLocation = model.Property{Name: "Location", Key: "location", Type: model.TypeLocation}

// DGPSStationSchema instantiates the engine for the DGPS-station feed.
func DGPSStationSchema() *model.Schema[DGPSStation] {
	return &model.Schema[DGPSStation]{
		Key:      "dgpsstation",
		Name:     "DGPS Station",
		Table:    "dgps_stations",
		ArrayKey: "ngalol",
		SortHint: "geopoliticalHeading",
		Fields: []model.Field{
			{Key: "key", Column: "key", Type: model.TypeString},
			{Key: "featureNumber", Column: "feature_number", Type: model.TypeString},
			{Key: "volumeNumber", Column: "volume_number", Type: model.TypeString},
			{Key: "name", Column: "name", Type: model.TypeString},
			{Key: "heading", Column: "heading", Type: model.TypeString},
			{Key: "stationId", Column: "station_id", Type: model.TypeString},
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
			{Property: DGPSHeading, Ascending: true, Section: true},
			{Property: DGPSName, Ascending: true},
		},
		Decode: func(data []byte) (DGPSStation, error) {
			var w struct {
				FeatureNumber json.Number `json:"featureNumber"`
				VolumeNumber  string      `json:"volumeNumber"`
				Name          string      `json:"name"`
				Heading       string      `json:"geopoliticalHeading"`
				StationID     string      `json:"stationID"`
				Latitude      float64     `json:"latitude"`
				Longitude     float64     `json:"longitude"`
				Frequency     string      `json:"frequency"`
				Range         string      `json:"range"`
				NoticeNumber  int64       `json:"noticeNumber"`
			}
			if err := json.Unmarshal(data, &w); err != nil {
				return DGPSStation{}, err
			}
			return DGPSStation{
				FeatureNumber: w.FeatureNumber.String(),
				VolumeNumber:  w.VolumeNumber,
				Name:          w.Name,
				Heading:       w.Heading,
				StationID:     w.StationID,
				Latitude:      w.Latitude,
				Longitude:     w.Longitude,
				Frequency:     w.Frequency,
				Range:         w.Range,
				NoticeNumber:  w.NoticeNumber,
			}, nil
		},
		Valid: func(d DGPSStation) bool {
			return d.FeatureNumber != "" && d.VolumeNumber != "" &&
				(d.Latitude != 0 || d.Longitude != 0)
		},
		Values: func(d DGPSStation) map[string]any {
			return map[string]any{
				"key":           d.FeatureNumber + " " + d.VolumeNumber,
				"featureNumber": d.FeatureNumber,
				"volumeNumber":  d.VolumeNumber,
				"name":          d.Name,
				"heading":       d.Heading,
				"stationId":     d.StationID,
				"latitude":      d.Latitude,
				"longitude":     d.Longitude,
				"frequency":     d.Frequency,
				"range":         d.Range,
				"noticeNumber":  d.NoticeNumber,
			}
		},
		FromValues: func(v map[string]any) DGPSStation {
			return DGPSStation{
				FeatureNumber: mapString(v, "featureNumber"),
				VolumeNumber:  mapString(v, "volumeNumber"),
				Name:          mapString(v, "name"),
				Heading:       mapString(v, "heading"),
				StationID:     mapString(v, "stationId"),
				Latitude:      mapFloat(v, "latitude"),
				Longitude:     mapFloat(v, "longitude"),
				Frequency:     mapString(v, "frequency"),
				Range:         mapString(v, "range"),
				NoticeNumber:  mapInt(v, "noticeNumber"),
			}
		},
		Summary: func(d DGPSStation) string {
			if d.StationID == "" {
				return fmt.Sprintf("%s %s", d.FeatureNumber, d.Name)
			}
			return fmt.Sprintf("%s %s (station %s)", d.FeatureNumber, d.Name, d.StationID)
		},
		SinceParams: noticeWindow[DGPSStation](func(d *DGPSStation) int64 { return d.NoticeNumber }),
	}
}
