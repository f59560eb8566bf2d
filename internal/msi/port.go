package msi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/njoerd114/msisync/internal/model"
)

// Port is one world-port index entry. The port feed is a slowly changing
// reference set: every pass fetches it whole and the natural-key upsert keeps
// re-imports cheap.
type Port struct {
	PortNumber  int64
	Name        string
	Latitude    float64
	Longitude   float64
	CountryName string
	Region      string
	HarborSize  string
	HarborType  string
	Shelter     string
}

// PortName is the filterable/sortable name property.
var PortName = model.Property{Name: "Name", Key: "name", Type: model.TypeString}

// PortCountry is the country property.
var PortCountry = model.Property{Name: "Country", Key: "country", Type: model.TypeString}

// PortLocation is the location pseudo-property used by geo filters.
var PortLocation = model.Property{Name: "Location", Key: "location", Type: model.TypeLocation}

// PortSchema instantiates the engine for the world-port feed.
func PortSchema() *model.Schema[Port] {
	return &model.Schema[Port]{
		Key:      "port",
		Name:     "World Port",
		Table:    "ports",
		ArrayKey: "ports",
		SortHint: "portName",
		Fields: []model.Field{
			{Key: "portNumber", Column: "port_number", Type: model.TypeInt},
			{Key: "name", Column: "name", Type: model.TypeString},
			{Key: "latitude", Column: "latitude", Type: model.TypeLatitude},
			{Key: "longitude", Column: "longitude", Type: model.TypeLongitude},
			{Key: "country", Column: "country", Type: model.TypeString},
			{Key: "region", Column: "region", Type: model.TypeString},
			{Key: "harborSize", Column: "harbor_size", Type: model.TypeEnumeration},
			{Key: "harborType", Column: "harbor_type", Type: model.TypeEnumeration},
			{Key: "shelter", Column: "shelter", Type: model.TypeEnumeration},
		},
		NaturalKeyField: "portNumber",
		OrderingField:   "portNumber",
		LatField:        "latitude",
		LonField:        "longitude",
		// Alphabetical, no section key: the port list renders headerless.
		DefaultSort: []model.SortParameter{
			{Property: PortName, Ascending: true},
		},
		Decode: func(data []byte) (Port, error) {
			var w struct {
				PortNumber  int64   `json:"portNumber"`
				Name        string  `json:"portName"`
				Latitude    float64 `json:"latitude"`
				Longitude   float64 `json:"longitude"`
				CountryName string  `json:"countryName"`
				Region      string  `json:"regionName"`
				HarborSize  string  `json:"harborSize"`
				HarborType  string  `json:"harborType"`
				Shelter     string  `json:"shelter"`
			}
			if err := json.Unmarshal(data, &w); err != nil {
				return Port{}, err
			}
			return Port{
				PortNumber:  w.PortNumber,
				Name:        w.Name,
				Latitude:    w.Latitude,
				Longitude:   w.Longitude,
				CountryName: w.CountryName,
				Region:      w.Region,
				HarborSize:  w.HarborSize,
				HarborType:  w.HarborType,
				Shelter:     w.Shelter,
			}, nil
		},
		Valid: func(p Port) bool {
			return p.PortNumber != 0 && (p.Latitude != 0 || p.Longitude != 0)
		},
		Values: func(p Port) map[string]any {
			return map[string]any{
				"portNumber": p.PortNumber,
				"name":       p.Name,
				"latitude":   p.Latitude,
				"longitude":  p.Longitude,
				"country":    p.CountryName,
				"region":     p.Region,
				"harborSize": p.HarborSize,
				"harborType": p.HarborType,
				"shelter":    p.Shelter,
			}
		},
		FromValues: func(v map[string]any) Port {
			return Port{
				PortNumber:  mapInt(v, "portNumber"),
				Name:        mapString(v, "name"),
				Latitude:    mapFloat(v, "latitude"),
				Longitude:   mapFloat(v, "longitude"),
				CountryName: mapString(v, "country"),
				Region:      mapString(v, "region"),
				HarborSize:  mapString(v, "harborSize"),
				HarborType:  mapString(v, "harborType"),
				Shelter:     mapString(v, "shelter"),
			}
		},
		Summary: func(p Port) string {
			if p.CountryName == "" {
				return p.Name
			}
			return fmt.Sprintf("%s, %s", p.Name, p.CountryName)
		},
		SinceParams: func(_ *Port, _ time.Time) url.Values {
			return url.Values{}
		},
	}
}
