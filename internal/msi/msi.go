// Package msi defines the maritime-safety bulletin types — ASAM hazard
// reports, MODU rig positions, navigational warnings, world ports,
// radiobeacons, DGPS stations, lights, and notices to mariners — and the
// schema instantiation each supplies to the generic sync-and-query engine.
package msi

import (
	"net/url"
	"time"

	"github.com/njoerd114/msisync/internal/model"
)

// Keys lists every entity key, in display order.
var Keys = []string{
	"asam", "modu", "warning", "port",
	"radiobeacon", "dgpsstation", "light", "ntm",
}

// maxDateSkew pads the upper bound of incremental date windows so records
// stamped slightly ahead of the local clock still arrive.
const maxDateSkew = 24 * time.Hour

// dateWindow builds the [minSourceDate, maxSourceDate] parameters for the
// date-ordered feeds. A nil newest means first load: no lower bound.
func dateWindow(newest time.Time, now time.Time) url.Values {
	v := url.Values{}
	if !newest.IsZero() {
		v.Set("minSourceDate", newest.UTC().Format(model.DateLayout))
	}
	v.Set("maxSourceDate", now.UTC().Add(maxDateSkew).Format(model.DateLayout))
	return v
}

// parseDate parses the date layouts the bulletin feeds use, zero time on
// failure. A zero date is lossy, not fatal; validation decides whether the
// record survives.
func parseDate(s string) time.Time {
	for _, layout := range []string{model.DateLayout, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// --- field-map accessors -----------------------------------------------------

func mapString(v map[string]any, key string) string {
	s, _ := v[key].(string)
	return s
}

func mapInt(v map[string]any, key string) int64 {
	n, _ := v[key].(int64)
	return n
}

func mapFloat(v map[string]any, key string) float64 {
	f, _ := v[key].(float64)
	return f
}

func mapDate(v map[string]any, key string) time.Time {
	t, _ := v[key].(time.Time)
	return t
}
