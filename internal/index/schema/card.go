package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

// CardExt is the extension that marks a file as a card document.
const CardExt = ".json"

// Card is one loaded card document. It is built per load and never cached.
type Card struct {
	Variant  Variant
	ID       uint64
	Title    string
	Created  string
	Modified string
	Source   *string
	Tags     []string
	Links    []string

	// Props holds the variant-specific values keyed by column name. Absent
	// optional values are nil.
	Props map[string]any
}

// QualifiedID returns the "<type>/<id>" identity of c.
func (c *Card) QualifiedID() QualifiedID {
	return QualifiedID{Variant: c.Variant, ID: c.ID}
}

// Values returns the row values in the column order of the variant table.
func (c *Card) Values() []any {
	var source any
	if c.Source != nil {
		source = *c.Source
	}
	values := []any{int64(c.ID), c.Title, c.Created, c.Modified, source}
	for _, p := range c.Variant.Spec().Properties {
		values = append(values, c.Props[p.Column])
	}
	return values
}

// ParsedLinks parses every link descriptor of c. It fails on the first
// malformed descriptor.
func (c *Card) ParsedLinks() ([]Link, error) {
	links := make([]Link, 0, len(c.Links))
	for _, s := range c.Links {
		l, err := ParseLink(s)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, nil
}

// Dir returns the directory holding cards of variant v under root.
func Dir(root string, v Variant) string {
	return filepath.Join(root, v.Tag())
}

// Filename returns the canonical file name for a card id: {id}.json
func Filename(id uint64) string {
	return strconv.FormatUint(id, 10) + CardExt
}

// CardPath returns the path of the card file for (v, id) under root.
func CardPath(root string, v Variant, id uint64) string {
	return filepath.Join(Dir(root, v), Filename(id))
}

// ParseFilename extracts the card id from a file name like "42.json".
// It reports false for anything that is not a card document, including
// non-canonical spellings such as "042.json" that CardPath never produces.
func ParseFilename(name string) (uint64, bool) {
	if filepath.Ext(name) != CardExt {
		return 0, false
	}
	id, err := ParseID(strings.TrimSuffix(name, CardExt))
	if err != nil || Filename(id) != name {
		return 0, false
	}
	return id, true
}

// ListCardIDs returns the ids of every card document in the variant's
// directory, in ascending order. Files with other extensions or a
// non-numeric stem are skipped. A missing directory yields no ids.
func ListCardIDs(root string, v Variant) ([]uint64, error) {
	entries, err := os.ReadDir(Dir(root, v))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []uint64{}, nil
		}
		return nil, fmt.Errorf("failed to read %s directory: %w", v.Tag(), err)
	}

	ids := make([]uint64, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := ParseFilename(entry.Name())
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// ReadRaw returns the exact bytes of the card file.
func ReadRaw(root string, v Variant, id uint64) ([]byte, error) {
	path := CardPath(root, v, id)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrCardAccess, path, err)
	}
	return data, nil
}

// ReadCard loads and parses the card (v, id) under root.
func ReadCard(root string, v Variant, id uint64) (*Card, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("cannot load card of invalid type %d", int(v))
	}
	data, err := ReadRaw(root, v, id)
	if err != nil {
		return nil, err
	}
	return ParseCard(v, id, data)
}

// ParseCard builds a Card from the JSON document in data.
func ParseCard(v Variant, id uint64, data []byte) (*Card, error) {
	parsed, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrCardFormat, QualifiedID{Variant: v, ID: id}, err)
	}
	doc, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w %s: document is not an object", ErrCardFormat, QualifiedID{Variant: v, ID: id})
	}

	card := &Card{Variant: v, ID: id, Props: make(map[string]any)}
	if card.Title, err = requiredText(doc, "Title"); err != nil {
		return nil, err
	}
	if card.Created, err = requiredText(doc, "Created"); err != nil {
		return nil, err
	}
	if card.Modified, err = requiredText(doc, "Modified"); err != nil {
		return nil, err
	}
	source, err := readProperty(doc, opt("Source", "source", KindText))
	if err != nil {
		return nil, err
	}
	if source != nil {
		s := source.(string)
		card.Source = &s
	}
	if card.Tags, err = readStringList(doc, "Tags"); err != nil {
		return nil, err
	}
	if card.Links, err = readStringList(doc, "Links"); err != nil {
		return nil, err
	}

	for _, p := range v.Spec().Properties {
		val, err := readProperty(doc, p)
		if err != nil {
			return nil, err
		}
		card.Props[p.Column] = val
	}
	return card, nil
}

// WriteCard writes doc as the card file for (v, id) under root, creating
// the variant directory when needed. Keys are sorted for stable output.
func WriteCard(root string, v Variant, id uint64, doc map[string]any) error {
	dir := Dir(root, v)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", v.Tag(), err)
	}

	data, err := oj.Marshal(doc, &ojg.Options{Indent: 2, Sort: true})
	if err != nil {
		return fmt.Errorf("failed to marshal card %s: %w", QualifiedID{Variant: v, ID: id}, err)
	}

	path := CardPath(root, v, id)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write card file %s: %w", path, err)
	}
	return nil
}

func requiredText(doc map[string]any, key string) (string, error) {
	val, err := readProperty(doc, req(key, strings.ToLower(key), KindText))
	if err != nil {
		return "", err
	}
	return val.(string), nil
}
