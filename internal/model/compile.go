package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrNoGeometry is returned when a location filter targets an entity that has
// no latitude/longitude fields.
var ErrNoGeometry = fmt.Errorf("entity has no geolocation fields")

// StoreTimeLayout is the storage layout for date values. RFC 3339 UTC strings
// compare lexicographically in timestamp order, so date predicates compile to
// plain string comparisons.
const StoreTimeLayout = "2006-01-02T15:04:05Z"

// StoreTime formats a timestamp for storage and SQL comparison.
func StoreTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(StoreTimeLayout)
}

// ParseStoreTime parses a stored timestamp. Empty means absent.
func ParseStoreTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(StoreTimeLayout, s)
}

// RadiusBox derives the bounding box for a radius filter. The radius is in
// nautical miles: one minute of latitude is one nautical mile, and longitude
// minutes shrink with the cosine of the latitude.
func RadiusBox(c Circle) Box {
	dLat := c.RadiusNM / 60.0
	cosLat := math.Cos(c.Latitude * math.Pi / 180.0)
	if cosLat < 0.01 {
		cosLat = 0.01 // keep the box finite near the poles
	}
	dLon := c.RadiusNM / (60.0 * cosLat)
	return Box{
		MinLatitude:  c.Latitude - dLat,
		MaxLatitude:  c.Latitude + dLat,
		MinLongitude: c.Longitude - dLon,
		MaxLongitude: c.Longitude + dLon,
	}
}

// CompileFilters compiles an AND-conjunction of filters into a SQL predicate
// and its arguments. latCol/lonCol are the geolocation columns, empty for
// entities without one. now anchors window filters. An empty filter list
// compiles to an empty predicate.
func CompileFilters(fields map[string]Field, latCol, lonCol string, filters []FilterParameter, now time.Time) (string, []any, error) {
	var clauses []string
	var args []any

	for _, f := range filters {
		clause, clauseArgs, err := compileFilter(fields, latCol, lonCol, f, now)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, clauseArgs...)
	}

	return strings.Join(clauses, " AND "), args, nil
}

func compileFilter(fields map[string]Field, latCol, lonCol string, f FilterParameter, now time.Time) (string, []any, error) {
	if !LegalComparison(f.Property.Type, f.Comparison) {
		return "", nil, fmt.Errorf("%w: %s on %s property %q",
			ErrIllegalComparison, f.Comparison, f.Property.Type, f.Property.Name)
	}

	// Location filters compile against the geolocation columns rather than a
	// column of their own.
	if f.Property.Type == TypeLocation {
		return compileLocation(latCol, lonCol, f)
	}

	field, ok := fields[f.Property.Key]
	if !ok {
		return "", nil, fmt.Errorf("filter references unknown field %q", f.Property.Key)
	}
	col := field.Column

	switch f.Property.Type {
	case TypeString, TypeEnumeration:
		s, _ := f.Value.(string)
		switch f.Comparison {
		case CompareEquals:
			return col + " = ?", []any{s}, nil
		case CompareNotEquals:
			return col + " != ?", []any{s}, nil
		case CompareContains:
			return col + " LIKE '%' || ? || '%'", []any{s}, nil
		case CompareNotContains:
			return col + " NOT LIKE '%' || ? || '%'", []any{s}, nil
		case CompareStartsWith:
			return col + " LIKE ? || '%'", []any{s}, nil
		case CompareEndsWith:
			return col + " LIKE '%' || ?", []any{s}, nil
		}

	case TypeDate:
		if f.Comparison == CompareWindow {
			days, _ := f.Value.(int)
			startOfToday := now.UTC().Truncate(24 * time.Hour)
			since := startOfToday.AddDate(0, 0, -days)
			return col + " >= ?", []any{StoreTime(since)}, nil
		}
		t, _ := f.Value.(time.Time)
		return col + " " + comparisonSQL(f.Comparison) + " ?", []any{StoreTime(t)}, nil

	case TypeInt:
		n, _ := f.Value.(int64)
		return col + " " + comparisonSQL(f.Comparison) + " ?", []any{n}, nil

	case TypeFloat, TypeDouble, TypeLatitude, TypeLongitude:
		v, _ := f.Value.(float64)
		return col + " " + comparisonSQL(f.Comparison) + " ?", []any{v}, nil

	case TypeBoolean:
		b, _ := f.Value.(bool)
		n := int64(0)
		if b {
			n = 1
		}
		return col + " " + comparisonSQL(f.Comparison) + " ?", []any{n}, nil
	}

	return "", nil, fmt.Errorf("cannot compile %s on %s property %q",
		f.Comparison, f.Property.Type, f.Property.Name)
}

func compileLocation(latCol, lonCol string, f FilterParameter) (string, []any, error) {
	if latCol == "" || lonCol == "" {
		return "", nil, fmt.Errorf("location filter on %q: %w", f.Property.Name, ErrNoGeometry)
	}

	var box Box
	switch f.Comparison {
	case CompareBounds:
		box, _ = f.Value.(Box)
	case CompareNearMe, CompareCloseTo:
		circle, _ := f.Value.(Circle)
		box = RadiusBox(circle)
	default:
		return "", nil, fmt.Errorf("%w: %s on location property %q",
			ErrIllegalComparison, f.Comparison, f.Property.Name)
	}

	clause := fmt.Sprintf("(%s BETWEEN ? AND ? AND %s BETWEEN ? AND ?)", latCol, lonCol)
	args := []any{box.MinLatitude, box.MaxLatitude, box.MinLongitude, box.MaxLongitude}
	return clause, args, nil
}

// comparisonSQL maps an ordering comparison to its SQL operator.
func comparisonSQL(c Comparison) string {
	switch c {
	case CompareEquals:
		return "="
	case CompareNotEquals:
		return "!="
	case CompareGreaterThan:
		return ">"
	case CompareGreaterThanEqual:
		return ">="
	case CompareLessThan:
		return "<"
	case CompareLessThanEqual:
		return "<="
	default:
		return "="
	}
}

// CompileSort compiles sort parameters into an ORDER BY clause body. A tie
// break on the natural key column keeps pagination stable across pages.
func CompileSort(fields map[string]Field, sorts []SortParameter, naturalKeyCol string) (string, error) {
	if err := ValidateSort(sorts); err != nil {
		return "", err
	}

	var parts []string
	for _, sp := range sorts {
		field, ok := fields[sp.Property.Key]
		if !ok {
			return "", fmt.Errorf("sort references unknown field %q", sp.Property.Key)
		}
		dir := " DESC"
		if sp.Ascending {
			dir = " ASC"
		}
		parts = append(parts, field.Column+dir)
	}
	if naturalKeyCol != "" {
		parts = append(parts, naturalKeyCol+" ASC")
	}
	return strings.Join(parts, ", "), nil
}
