package model

// ItemKind tags the variants of the paginated-list item union.
type ItemKind int

const (
	// KindListItem is a row carrying a record.
	KindListItem ItemKind = iota

	// KindSectionHeader marks a change in the formatted section-key value.
	KindSectionHeader

	// KindPeriod is a section header rendered as a period bucket label
	// (e.g. a publication week) rather than a raw field value.
	KindPeriod
)

// Item is one element of a paginated query result: either a list row with its
// display projection, or a synthetic header. Items are produced by the query
// path only and never stored.
type Item[M any] struct {
	Kind ItemKind

	// Header is the section or period label. Set for header kinds only.
	Header string

	// Record is the full record. Set for KindListItem only.
	Record M

	// Summary is the record's list-display projection, derived via
	// [Schema.Summary] at query time.
	Summary string
}

// ListItem builds a row item.
func ListItem[M any](record M, summary string) Item[M] {
	return Item[M]{Kind: KindListItem, Record: record, Summary: summary}
}

// SectionHeader builds a header item of the given kind.
func SectionHeader[M any](kind ItemKind, header string) Item[M] {
	return Item[M]{Kind: kind, Header: header}
}
