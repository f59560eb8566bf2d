package model

import (
	"fmt"
	"time"
)

// ErrIllegalComparison is wrapped by [NewFilter] when the comparison operator
// is not in the legal subset for the property's semantic type.
var ErrIllegalComparison = fmt.Errorf("comparison not legal for semantic type")

// Box is a latitude/longitude bounding box.
type Box struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// Circle is a point with a radius in nautical miles. Used by the nearMe and
// closeTo comparisons; it compiles to a derived bounding box, not a geodesic
// circle.
type Circle struct {
	Latitude  float64
	Longitude float64
	RadiusNM  float64
}

// FilterParameter is one validated filter clause. All clauses of a query
// combine with logical AND. Construct via [NewFilter] or one of the location
// helpers; a zero FilterParameter is not valid.
type FilterParameter struct {
	Property   Property
	Comparison Comparison

	// Value holds the literal the comparison tests against. Its dynamic type
	// depends on the property type and comparison:
	//   string, enumeration            → string
	//   date                           → time.Time, or int (days) for window
	//   int                            → int64
	//   float, double, latitude, longitude → float64
	//   boolean                        → bool
	//   location nearMe/closeTo        → Circle
	//   location bounds                → Box
	Value any
}

// NewFilter validates and builds a FilterParameter. The comparison must be
// legal for the property's semantic type, and value's dynamic type must match
// the table on [FilterParameter.Value].
func NewFilter(p Property, c Comparison, value any) (FilterParameter, error) {
	if !LegalComparison(p.Type, c) {
		return FilterParameter{}, fmt.Errorf("%w: %s on %s property %q",
			ErrIllegalComparison, c, p.Type, p.Name)
	}
	if err := checkValueType(p.Type, c, value); err != nil {
		return FilterParameter{}, fmt.Errorf("filter on %q: %w", p.Name, err)
	}
	return FilterParameter{Property: p, Comparison: c, Value: value}, nil
}

// NewWindowFilter builds a "within the last N days" filter on a date property.
func NewWindowFilter(p Property, days int) (FilterParameter, error) {
	if days <= 0 {
		return FilterParameter{}, fmt.Errorf("window filter on %q: days must be positive, got %d", p.Name, days)
	}
	return NewFilter(p, CompareWindow, days)
}

// NewCloseTo builds a "within radius of a fixed point" filter on a location
// property. The radius is in nautical miles.
func NewCloseTo(p Property, radiusNM, lat, lon float64) (FilterParameter, error) {
	return NewFilter(p, CompareCloseTo, Circle{Latitude: lat, Longitude: lon, RadiusNM: radiusNM})
}

// NewNearMe builds a "within radius of the device position" filter. The
// caller resolves the position before constructing the filter — an unknown
// position is a construction-time error, never a silently empty predicate.
func NewNearMe(p Property, radiusNM float64, lat, lon float64, positionKnown bool) (FilterParameter, error) {
	if !positionKnown {
		return FilterParameter{}, fmt.Errorf("near-me filter on %q requires a device position", p.Name)
	}
	return NewFilter(p, CompareNearMe, Circle{Latitude: lat, Longitude: lon, RadiusNM: radiusNM})
}

// NewBoundsFilter builds a bounding-box filter on a location property.
func NewBoundsFilter(p Property, box Box) (FilterParameter, error) {
	return NewFilter(p, CompareBounds, box)
}

// checkValueType verifies value's dynamic type against the property type.
func checkValueType(t SemanticType, c Comparison, value any) error {
	ok := false
	switch t {
	case TypeString, TypeEnumeration:
		_, ok = value.(string)
	case TypeDate:
		if c == CompareWindow {
			_, ok = value.(int)
		} else {
			_, ok = value.(time.Time)
		}
	case TypeInt:
		_, ok = value.(int64)
	case TypeFloat, TypeDouble, TypeLatitude, TypeLongitude:
		_, ok = value.(float64)
	case TypeBoolean:
		_, ok = value.(bool)
	case TypeLocation:
		if c == CompareBounds {
			_, ok = value.(Box)
		} else {
			_, ok = value.(Circle)
		}
	}
	if !ok {
		return fmt.Errorf("literal %T does not match %s %s", value, t, c)
	}
	return nil
}

// SortParameter orders a query by one property. At most one parameter in a
// sort list may be the section key, and it must come first.
type SortParameter struct {
	Property  Property
	Ascending bool

	// Section marks the parameter whose formatted value drives section
	// headers in paginated queries.
	Section bool
}

// ValidateSort checks the section-key placement rules for a sort list.
func ValidateSort(sorts []SortParameter) error {
	for i, s := range sorts {
		if s.Section && i != 0 {
			return fmt.Errorf("section sort on %q must be the first sort parameter", s.Property.Name)
		}
	}
	return nil
}
