// Package model defines the generic vocabulary shared by every bulletin type:
// semantic property types, comparison operators, filter and sort parameters,
// the paginated-list item union, and the [Schema] capability contract that
// each entity supplies to instantiate the sync-and-query engine.
package model

import "fmt"

// SemanticType classifies a property for filtering, sorting, and section-key
// formatting. It decides which comparison operators are legal and how values
// are rendered and stored.
type SemanticType int

const (
	TypeString SemanticType = iota
	TypeDate
	TypeInt
	TypeFloat
	TypeDouble
	TypeBoolean
	TypeEnumeration
	TypeLatitude
	TypeLongitude
	TypeLocation
)

// String returns the lower-case name of the semantic type.
func (t SemanticType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeBoolean:
		return "boolean"
	case TypeEnumeration:
		return "enumeration"
	case TypeLatitude:
		return "latitude"
	case TypeLongitude:
		return "longitude"
	case TypeLocation:
		return "location"
	default:
		return fmt.Sprintf("semantictype(%d)", int(t))
	}
}

// Comparison is a filter operator. Only a subset is legal per semantic type;
// see [LegalComparison].
type Comparison int

const (
	CompareEquals Comparison = iota
	CompareNotEquals
	CompareContains
	CompareNotContains
	CompareStartsWith
	CompareEndsWith
	CompareGreaterThan
	CompareGreaterThanEqual
	CompareLessThan
	CompareLessThanEqual
	CompareWindow  // date within the last N days
	CompareNearMe  // within radius of the device position
	CompareCloseTo // within radius of a fixed point
	CompareBounds  // inside a lat/lon box
)

// String returns the lower-case name of the comparison operator.
func (c Comparison) String() string {
	switch c {
	case CompareEquals:
		return "equals"
	case CompareNotEquals:
		return "not equals"
	case CompareContains:
		return "contains"
	case CompareNotContains:
		return "not contains"
	case CompareStartsWith:
		return "starts with"
	case CompareEndsWith:
		return "ends with"
	case CompareGreaterThan:
		return "greater than"
	case CompareGreaterThanEqual:
		return "greater than or equal"
	case CompareLessThan:
		return "less than"
	case CompareLessThanEqual:
		return "less than or equal"
	case CompareWindow:
		return "window"
	case CompareNearMe:
		return "near me"
	case CompareCloseTo:
		return "close to"
	case CompareBounds:
		return "bounds"
	default:
		return fmt.Sprintf("comparison(%d)", int(c))
	}
}

// legalComparisons maps each semantic type to its permitted operators.
var legalComparisons = map[SemanticType][]Comparison{
	TypeString: {
		CompareEquals, CompareNotEquals, CompareContains,
		CompareNotContains, CompareStartsWith, CompareEndsWith,
	},
	TypeDate: {
		CompareWindow, CompareEquals, CompareNotEquals,
		CompareGreaterThan, CompareGreaterThanEqual,
		CompareLessThan, CompareLessThanEqual,
	},
	TypeInt: {
		CompareEquals, CompareNotEquals,
		CompareGreaterThan, CompareGreaterThanEqual,
		CompareLessThan, CompareLessThanEqual,
	},
	TypeBoolean:     {CompareEquals, CompareNotEquals},
	TypeEnumeration: {CompareEquals, CompareNotEquals},
	TypeLatitude: {
		CompareEquals, CompareNotEquals,
		CompareGreaterThan, CompareGreaterThanEqual,
		CompareLessThan, CompareLessThanEqual,
	},
	TypeLocation: {CompareNearMe, CompareCloseTo, CompareBounds},
}

func init() {
	// float, double, and longitude share another type's operator subset.
	legalComparisons[TypeFloat] = legalComparisons[TypeInt]
	legalComparisons[TypeDouble] = legalComparisons[TypeInt]
	legalComparisons[TypeLongitude] = legalComparisons[TypeLatitude]
}

// LegalComparison reports whether c is permitted on a property of type t.
func LegalComparison(t SemanticType, c Comparison) bool {
	for _, legal := range legalComparisons[t] {
		if legal == c {
			return true
		}
	}
	return false
}

// Property identifies one filterable/sortable field of an entity.
type Property struct {
	// Name is the human-readable label, e.g. "Date".
	Name string

	// Key is the schema field key the property refers to, e.g. "date".
	Key string

	// Type decides legal comparisons and value formatting.
	Type SemanticType
}
