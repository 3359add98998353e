// Package schema defines the card variants, their on-disk JSON documents
// and the loader that turns one document into a Card.
//
// # Overview
//
// Cards are human-edited JSON documents stored one per file under a root
// directory with one subdirectory per variant type tag:
//
//	cards/
//	  book/17.json
//	  task/42.json
//	  note/3.json
//
// The file stem is the card id. Ids are unique within a variant only, so a
// card is globally identified by its qualified id "<type>/<id>", e.g.
// "book/17".
//
// # Card Documents
//
// Every card carries the common properties Title, Created and Modified
// (required), Source (optional), and the string lists Tags and Links:
//
//	{
//	  "Title": "The Dispossessed",
//	  "Created": "2024-03-01T10:00:00Z",
//	  "Modified": "2024-03-02T09:12:00Z",
//	  "Tags": ["fiction", "scifi"],
//	  "Links": ["series:book/18", "note/3"],
//	  "Authors": "Ursula K. Le Guin",
//	  "Year": 1974
//	}
//
// Link descriptors are "role:type/id" or "type/id"; the role is everything
// before the first colon.
//
// # Variants
//
// The set of variants is closed. Each Variant has a stable tag, a numeric
// discriminant used in the Taggings and Links tables, and a Spec listing its
// properties in index column order. Shared code (loading, indexing, queries)
// is driven by the Spec rather than by per-variant types.
//
// # Leniency
//
// A required property that is present but null or empty reads as the
// default of its kind. A missing required property, or an unparsable value
// of any property, is a PropertyError. Flags read as false when absent.
package schema
