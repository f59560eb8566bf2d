package msi

import (
	"encoding/json"
	"fmt"

	"github.com/njoerd114/msisync/internal/model"
)

// Light is one light entry from the list-of-lights volumes. A feature number
// can describe several lights on one structure, so the natural key adds the
// characteristic number to the feature/volume pair.
type Light struct {
	FeatureNumber      string
	VolumeNumber       string
	Characteristic     int64
	Name               string
	Heading            string
	Latitude           float64
	Longitude          float64
	CharacteristicText string
	Range              string
	NoticeNumber       int64
}

// LightHeading is the geopolitical-heading property that sections the light
// list.
var LightHeading = model.Property{Name: "Region", Key: "heading", Type: model.TypeString}

// LightName is the light-name property.
var LightName = model.Property{Name: "Name", Key: "name", Type: model.TypeString}

// LightLocation is the location pseudo-property used by geo filters.
var LightLocation = model.Property{Name: "Location", Key: "location", Type: model.TypeLocation}

// LightSchema instantiates the engine for the light feed.
func LightSchema() *model.Schema[Light] {
	return &model.Schema[Light]{
		Key:      "light",
		Name:     "Light",
		Table:    "lights",
		ArrayKey: "ngalol",
		SortHint: "geopoliticalHeading",
		Fields: []model.Field{
			{Key: "key", Column: "key", Type: model.TypeString},
			{Key: "featureNumber", Column: "feature_number", Type: model.TypeString},
			{Key: "volumeNumber", Column: "volume_number", Type: model.TypeString},
			{Key: "characteristicNumber", Column: "characteristic_number", Type: model.TypeInt},
			{Key: "name", Column: "name", Type: model.TypeString},
			{Key: "heading", Column: "heading", Type: model.TypeString},
			{Key: "latitude", Column: "latitude", Type: model.TypeLatitude},
			{Key: "longitude", Column: "longitude", Type: model.TypeLongitude},
			{Key: "characteristic", Column: "characteristic", Type: model.TypeString},
			{Key: "range", Column: "range", Type: model.TypeString},
			{Key: "noticeNumber", Column: "notice_number", Type: model.TypeInt},
		},
		NaturalKeyField: "key",
		OrderingField:   "noticeNumber",
		LatField:        "latitude",
		LonField:        "longitude",
		DefaultSort: []model.SortParameter{
			{Property: LightHeading, Ascending: true, Section: true},
			{Property: LightName, Ascending: true},
		},
		Decode: func(data []byte) (Light, error) {
			var w struct {
				FeatureNumber  json.Number `json:"featureNumber"`
				VolumeNumber   string      `json:"volumeNumber"`
				Characteristic int64       `json:"characteristicNumber"`
				Name           string      `json:"name"`
				Heading        string      `json:"geopoliticalHeading"`
				Latitude       float64     `json:"latitude"`
				Longitude      float64     `json:"longitude"`
				CharText       string      `json:"characteristic"`
				Range          string      `json:"range"`
				NoticeNumber   int64       `json:"noticeNumber"`
			}
			if err := json.Unmarshal(data, &w); err != nil {
				return Light{}, err
			}
			return Light{
				FeatureNumber:      w.FeatureNumber.String(),
				VolumeNumber:       w.VolumeNumber,
				Characteristic:     w.Characteristic,
				Name:               w.Name,
				Heading:            w.Heading,
				Latitude:           w.Latitude,
				Longitude:          w.Longitude,
				CharacteristicText: w.CharText,
				Range:              w.Range,
				NoticeNumber:       w.NoticeNumber,
			}, nil
		},
		Valid: func(l Light) bool {
			return l.FeatureNumber != "" && l.VolumeNumber != "" &&
				(l.Latitude != 0 || l.Longitude != 0)
		},
		Values: func(l Light) map[string]any {
			return map[string]any{
				"key":                  fmt.Sprintf("%s %s #%d", l.FeatureNumber, l.VolumeNumber, l.Characteristic),
				"featureNumber":        l.FeatureNumber,
				"volumeNumber":         l.VolumeNumber,
				"characteristicNumber": l.Characteristic,
				"name":                 l.Name,
				"heading":              l.Heading,
				"latitude":             l.Latitude,
				"longitude":            l.Longitude,
				"characteristic":       l.CharacteristicText,
				"range":                l.Range,
				"noticeNumber":         l.NoticeNumber,
			}
		},
		FromValues: func(v map[string]any) Light {
			return Light{
				FeatureNumber:      mapString(v, "featureNumber"),
				VolumeNumber:       mapString(v, "volumeNumber"),
				Characteristic:     mapInt(v, "characteristicNumber"),
				Name:               mapString(v, "name"),
				Heading:            mapString(v, "heading"),
				Latitude:           mapFloat(v, "latitude"),
				Longitude:          mapFloat(v, "longitude"),
				CharacteristicText: mapString(v, "characteristic"),
				Range:              mapString(v, "range"),
				NoticeNumber:       mapInt(v, "noticeNumber"),
			}
		},
		Summary: func(l Light) string {
			if l.CharacteristicText == "" {
				return fmt.Sprintf("%s %s", l.FeatureNumber, l.Name)
			}
			return fmt.Sprintf("%s %s %s", l.FeatureNumber, l.Name, l.CharacteristicText)
		},
		SinceParams: noticeWindow[Light](func(l *Light) int64 { return l.NoticeNumber }),
	}
}
