// Package material resolves a material name to its bulk density and category, which drive
// method selection, error modeling and the final volume-to-weight conversion.
package material

import (
	"bytes"
	_ "embed"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"go.viam.com/volumescan/utils"
)

// Category groups materials by how they pile and how accurately they can be measured.
type Category string

// Known categories.
const (
	CategoryPowder     Category = "powder"
	CategoryGranular   Category = "granular"
	CategoryFineSpice  Category = "fine_spice"
	CategoryLiquid     Category = "liquid"
	CategoryDenseSolid Category = "dense_solid"
	CategorySolid      Category = "solid"
	CategoryIrregular  Category = "irregular"
	CategoryUnknown    Category = "unknown"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryPowder,
	CategoryGranular,
	CategoryFineSpice,
	CategoryLiquid,
	CategoryDenseSolid,
	CategorySolid,
	CategoryIrregular,
	CategoryUnknown,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return lo.Contains(Categories, c)
}

// PowderLike reports whether the material piles like a powder and suits a height map.
func (c Category) PowderLike() bool {
	return c == CategoryPowder || c == CategoryGranular || c == CategoryFineSpice
}

// SolidLike reports whether the material holds its own shape.
func (c Category) SolidLike() bool {
	return c == CategoryDenseSolid || c == CategorySolid
}

// Material is one table entry.
type Material struct {
	Name     string   `yaml:"name" json:"name"`
	Density  float64  `yaml:"density" json:"density"`
	Category Category `yaml:"category" json:"category"`
}

// WeightGrams converts a volume in cm³ to grams.
func (m Material) WeightGrams(volumeCM3 float64) float64 {
	w := volumeCM3 * m.Density
	if !utils.IsFinite(w) || w < 0 {
		return 0
	}
	return w
}

//go:embed materials.yaml
var defaultTable []byte

type tableFile struct {
	Materials []Material `yaml:"materials"`
}

// Table is an ordered, read-only material table.
type Table struct {
	materials []Material
}

// NewTable validates the entries and returns a table preserving their order.
func NewTable(materials []Material) (*Table, error) {
	for i, m := range materials {
		if strings.TrimSpace(m.Name) == "" {
			return nil, errors.Errorf("material %d: name is required", i)
		}
		if !utils.IsFinite(m.Density) || m.Density <= 0 {
			return nil, errors.Errorf("material %q: density must be positive, got %v", m.Name, m.Density)
		}
		if !m.Category.Valid() {
			return nil, errors.Errorf("material %q: unknown category %q", m.Name, m.Category)
		}
	}
	return &Table{materials: append([]Material(nil), materials...)}, nil
}

// LoadTable parses a YAML table with a top-level "materials" list.
func LoadTable(r io.Reader) (*Table, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file tableFile
	if err := dec.Decode(&file); err != nil {
		return nil, errors.Wrap(err, "parsing material table")
	}
	return NewTable(file.Materials)
}

// DefaultTable returns the built-in table of common foods and ingredients.
func DefaultTable() (*Table, error) {
	return LoadTable(bytes.NewReader(defaultTable))
}

// Lookup finds a material by name: a case-insensitive exact match first, then an entry whose name
// appears in the query, then an entry whose name contains the query. Ties go to table order.
func (t *Table) Lookup(name string) (Material, bool) {
	query := normalize(name)
	if query == "" {
		return Material{}, false
	}
	if m, ok := lo.Find(t.materials, func(m Material) bool { return normalize(m.Name) == query }); ok {
		return m, true
	}
	if m, ok := lo.Find(t.materials, func(m Material) bool { return strings.Contains(query, normalize(m.Name)) }); ok {
		return m, true
	}
	return lo.Find(t.materials, func(m Material) bool { return strings.Contains(normalize(m.Name), query) })
}

// InCategory returns the materials of one category in table order.
func (t *Table) InCategory(c Category) []Material {
	return lo.Filter(t.materials, func(m Material, _ int) bool { return m.Category == c })
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.materials)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
