package model

import (
	"fmt"
	"net/url"
	"time"
)

// Field describes one persisted, queryable field of an entity.
type Field struct {
	// Key is the stable field identifier referenced by [Property.Key].
	Key string

	// Column is the SQL column the field is stored in.
	Column string

	// Type decides storage affinity, legal comparisons, and formatting.
	Type SemanticType
}

// Schema is the capability contract an entity type supplies to instantiate
// the generic sync-and-query engine. One Schema value exists per entity type
// and is shared by its local store, remote client, and repository.
//
// Values and FromValues exchange records as field-key → value maps. Permitted
// value types are string, int64, float64, bool, time.Time, and nil for an
// absent optional field.
type Schema[M any] struct {
	// Key is the entity key used in sync metadata, events, and logs.
	Key string

	// Name is the human-readable entity name.
	Name string

	// Table is the local store table.
	Table string

	// ArrayKey is the entity-array field of the remote JSON envelope.
	ArrayKey string

	// SortHint is the value of the remote "sort" query parameter.
	SortHint string

	// Fields lists every persisted field. The natural key must be first-class
	// here; fields not listed are neither stored nor queryable.
	Fields []Field

	// NaturalKeyField is the field key used for upsert identity.
	NaturalKeyField string

	// OrderingField is the field key whose maximum local value anchors the
	// incremental fetch window.
	OrderingField string

	// LatField and LonField name the geolocation fields, or are empty for
	// entities without a position.
	LatField string
	LonField string

	// DefaultSort is applied when a query supplies no sort parameters.
	DefaultSort []SortParameter

	// PeriodSection renders section headers as period buckets (KindPeriod).
	PeriodSection bool

	// Decode unmarshals one wire element. Lossy fields decode to their zero
	// value; a decode error rejects only that element.
	Decode func(data []byte) (M, error)

	// Valid reports whether the record carries its required fields (natural
	// key plus geolocation for geo entities). Invalid records never reach
	// the store.
	Valid func(record M) bool

	// Values projects a record to its field map for storage and comparison.
	Values func(record M) map[string]any

	// FromValues rebuilds a record from a stored field map.
	FromValues func(values map[string]any) M

	// Summary renders the record's list-display line.
	Summary func(record M) string

	// SinceParams builds the incremental-window query parameters. newest is
	// the newest locally cached record, or nil on first load.
	SinceParams func(newest *M, now time.Time) url.Values

	// SectionFormat overrides the default section-key formatting when set.
	SectionFormat func(f Field, v any) string
}

// Field returns the field with the given key.
func (s *Schema[M]) Field(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// FieldMap returns the fields indexed by key.
func (s *Schema[M]) FieldMap() map[string]Field {
	m := make(map[string]Field, len(s.Fields))
	for _, f := range s.Fields {
		m[f.Key] = f
	}
	return m
}

// SectionString formats a field value for section grouping, honouring the
// schema's override.
func (s *Schema[M]) SectionString(f Field, v any) string {
	if s.SectionFormat != nil {
		return s.SectionFormat(f, v)
	}
	return SectionValue(f.Type, v)
}

// HeaderKind returns the item kind this schema uses for section headers.
func (s *Schema[M]) HeaderKind() ItemKind {
	if s.PeriodSection {
		return KindPeriod
	}
	return KindSectionHeader
}

// NaturalKey returns the record's natural-key value as stored.
func (s *Schema[M]) NaturalKey(record M) any {
	return s.Values(record)[s.NaturalKeyField]
}

// Check validates the schema's internal consistency. Called once at wiring
// time; a failure is a programming error in the entity definition.
func (s *Schema[M]) Check() error {
	if s.Key == "" || s.Table == "" || s.ArrayKey == "" {
		return fmt.Errorf("schema %q: key, table, and array key are required", s.Key)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %q: no fields", s.Key)
	}
	if _, ok := s.Field(s.NaturalKeyField); !ok {
		return fmt.Errorf("schema %q: natural key field %q not declared", s.Key, s.NaturalKeyField)
	}
	if _, ok := s.Field(s.OrderingField); !ok {
		return fmt.Errorf("schema %q: ordering field %q not declared", s.Key, s.OrderingField)
	}
	if (s.LatField == "") != (s.LonField == "") {
		return fmt.Errorf("schema %q: latitude and longitude fields must be declared together", s.Key)
	}
	if s.LatField != "" {
		if _, ok := s.Field(s.LatField); !ok {
			return fmt.Errorf("schema %q: latitude field %q not declared", s.Key, s.LatField)
		}
		if _, ok := s.Field(s.LonField); !ok {
			return fmt.Errorf("schema %q: longitude field %q not declared", s.Key, s.LonField)
		}
	}
	if err := ValidateSort(s.DefaultSort); err != nil {
		return fmt.Errorf("schema %q: default sort: %w", s.Key, err)
	}
	for _, sp := range s.DefaultSort {
		if _, ok := s.Field(sp.Property.Key); !ok {
			return fmt.Errorf("schema %q: default sort references unknown field %q", s.Key, sp.Property.Key)
		}
	}
	if s.Decode == nil || s.Valid == nil || s.Values == nil || s.FromValues == nil ||
		s.Summary == nil || s.SinceParams == nil {
		return fmt.Errorf("schema %q: missing capability func", s.Key)
	}
	return nil
}
