package model

import (
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the canonical display layout for date values, matching the
// upstream bulletin feeds.
const DateLayout = "2006-01-02"

// SectionValue renders a field value as the section-key string used to group
// list rows. The mapping is pure: equal inputs always produce equal strings,
// and equal strings mean "same section".
//
//	string/enumeration → verbatim
//	date               → DateLayout
//	int                → decimal, zero → ""
//	float/double       → decimal, zero → ""
//	boolean            → "True" / "False"
//	latitude/longitude → signed-degree display string
func SectionValue(t SemanticType, v any) string {
	if v == nil {
		return ""
	}
	switch t {
	case TypeString, TypeEnumeration:
		s, _ := v.(string)
		return s
	case TypeDate:
		ts, ok := v.(time.Time)
		if !ok || ts.IsZero() {
			return ""
		}
		return ts.UTC().Format(DateLayout)
	case TypeInt:
		n, _ := v.(int64)
		if n == 0 {
			return ""
		}
		return strconv.FormatInt(n, 10)
	case TypeFloat, TypeDouble:
		f, _ := v.(float64)
		if f == 0 {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case TypeBoolean:
		b, _ := v.(bool)
		if b {
			return "True"
		}
		return "False"
	case TypeLatitude, TypeLongitude:
		f, _ := v.(float64)
		return fmt.Sprintf("%+.4f°", f)
	default:
		return fmt.Sprint(v)
	}
}
