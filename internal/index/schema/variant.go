package schema

import (
	"fmt"
	"slices"
)

// Variant identifies one kind of card. The numeric value is the discriminant
// written into the card_type/from_type/to_type columns of Taggings and Links,
// so the order of the constants must never change.
type Variant int

const (
	// Invalid is the zero Variant and never names a real card kind.
	Invalid Variant = iota
	Project
	Task
	Status
	Timelog
	Book
	Purchase
	Metric
	Word
	Note
	Thought
	Achievement
	Notebook
)

// Kind is the value type of a card property.
type Kind int

const (
	// KindText is free text, stored as TEXT.
	KindText Kind = iota
	// KindTimestamp is a date/time string, stored verbatim as TEXT.
	KindTimestamp
	// KindInt is a whole number, stored as INTEGER.
	KindInt
	// KindReal is a decimal number, stored as REAL.
	KindReal
	// KindBool is a flag, stored as 0/1. Missing or null flags read as false.
	KindBool
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTimestamp:
		return "timestamp"
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// SQLType returns the column type used in CREATE TABLE.
func (k Kind) SQLType() string {
	switch k {
	case KindTimestamp:
		return "DATETIME"
	case KindInt:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// Property describes one variant-specific field of a card document.
type Property struct {
	// Key is the JSON key in the card document.
	Key string
	// Column is the index column the value is stored in.
	Column string
	Kind   Kind
	// Required properties must be present in the document. A present but
	// null or empty value still reads as the kind's default.
	Required bool
}

// Column is one column of a variant's index table.
type Column struct {
	Name    string
	Kind    Kind
	NotNull bool
}

// Spec is the registry entry for a Variant.
type Spec struct {
	Variant Variant
	// Tag is the stable type tag used for directory names, qualified ids
	// and link descriptors.
	Tag string
	// Table is the index table holding one row per card of this variant.
	Table string
	// Properties lists the variant-specific properties in column order.
	Properties []Property
}

// Common columns shared by every variant table, in order.
var commonColumns = []Column{
	{Name: "id", Kind: KindInt, NotNull: true},
	{Name: "title", Kind: KindText, NotNull: true},
	{Name: "created", Kind: KindTimestamp, NotNull: true},
	{Name: "modified", Kind: KindTimestamp, NotNull: true},
	{Name: "source", Kind: KindText},
}

func opt(key, column string, kind Kind) Property {
	return Property{Key: key, Column: column, Kind: kind}
}

func req(key, column string, kind Kind) Property {
	return Property{Key: key, Column: column, Kind: kind, Required: true}
}

var registry = [...]Spec{
	Invalid: {Variant: Invalid, Tag: "invalid"},
	Project: {Variant: Project, Tag: "project", Table: "Projects", Properties: []Property{
		opt("Started", "started", KindTimestamp),
		opt("Finished", "finished", KindTimestamp),
		opt("Active", "active", KindBool),
	}},
	Task: {Variant: Task, Tag: "task", Table: "Tasks", Properties: []Property{
		opt("Completed", "completed", KindTimestamp),
		opt("Obsolete", "obsolete", KindBool),
	}},
	Status: {Variant: Status, Tag: "status", Table: "Statuses", Properties: []Property{
		opt("Began", "began", KindTimestamp),
		opt("Ended", "ended", KindTimestamp),
	}},
	Timelog: {Variant: Timelog, Tag: "timelog", Table: "Timelogs", Properties: []Property{
		req("Started", "started", KindTimestamp),
		opt("Ended", "ended", KindTimestamp),
		opt("Category", "category", KindText),
	}},
	Book: {Variant: Book, Tag: "book", Table: "Books", Properties: []Property{
		req("Authors", "authors", KindText),
		req("Year", "year", KindInt),
		opt("Started", "started", KindTimestamp),
		opt("Completed", "completed", KindTimestamp),
		opt("Cover", "cover", KindText),
		opt("IdentCode", "ident", KindText),
	}},
	Purchase: {Variant: Purchase, Tag: "purchase", Table: "Purchases", Properties: []Property{
		req("Date", "date", KindTimestamp),
		req("Price", "price", KindReal),
		req("Currency", "currency", KindText),
		opt("Used", "used", KindBool),
		req("Store", "store", KindText),
	}},
	Metric: {Variant: Metric, Tag: "metric", Table: "Metrics", Properties: []Property{
		req("Timestamp", "timestamp", KindTimestamp),
		req("Amount", "amount", KindReal),
	}},
	Word: {Variant: Word, Tag: "word", Table: "Words", Properties: []Property{
		req("Language", "language", KindText),
		req("Category", "category", KindText),
		opt("Gender", "gender", KindText),
	}},
	Note: {Variant: Note, Tag: "note", Table: "Notes", Properties: []Property{
		req("Text", "text", KindText),
	}},
	Thought: {Variant: Thought, Tag: "thought", Table: "Thoughts"},
	Achievement: {Variant: Achievement, Tag: "achievement", Table: "Achievements", Properties: []Property{
		opt("Date", "date", KindText),
	}},
	Notebook: {Variant: Notebook, Tag: "notebook", Table: "Notebooks", Properties: []Property{
		req("Description", "description", KindText),
		req("Location", "location", KindText),
		req("Format", "format", KindText),
		opt("Pages", "pages", KindInt),
		opt("Started", "started", KindText),
		opt("Ended", "ended", KindText),
	}},
}

// Variants returns every valid variant in discriminant order.
func Variants() []Variant {
	out := make([]Variant, 0, len(registry)-1)
	for v := Project; int(v) < len(registry); v++ {
		out = append(out, v)
	}
	return out
}

// ParseVariant maps a type tag such as "book" to its Variant.
func ParseVariant(tag string) (Variant, error) {
	for _, v := range Variants() {
		if registry[v].Tag == tag {
			return v, nil
		}
	}
	return Invalid, fmt.Errorf("unknown card type %q", tag)
}

// Valid reports whether v names a registered card kind.
func (v Variant) Valid() bool {
	return v > Invalid && int(v) < len(registry)
}

// Spec returns the registry entry for v. Invalid variants get the entry of
// Invalid, which has no table.
func (v Variant) Spec() *Spec {
	if !v.Valid() {
		return &registry[Invalid]
	}
	return &registry[v]
}

// Tag returns the stable type tag of v.
func (v Variant) Tag() string { return v.Spec().Tag }

// Table returns the index table name of v.
func (v Variant) Table() string { return v.Spec().Table }

// String implements fmt.Stringer.
func (v Variant) String() string { return v.Tag() }

// Columns returns the table columns of the variant: the common columns
// followed by the variant properties.
func (s *Spec) Columns() []Column {
	cols := slices.Clone(commonColumns)
	for _, p := range s.Properties {
		cols = append(cols, Column{Name: p.Column, Kind: p.Kind})
	}
	return cols
}

// ColumnNames returns the names of Columns in order.
func (s *Spec) ColumnNames() []string {
	cols := s.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// LookupColumn finds a column by name.
func (s *Spec) LookupColumn(name string) (Column, bool) {
	for _, c := range s.Columns() {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
