package material

import (
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestDefaultTable(t *testing.T) {
	table, err := DefaultTable()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, table.Len(), test.ShouldBeGreaterThan, 20)
	rice, ok := table.Lookup("rice")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, table.InCategory(rice.Category), test.ShouldContain, rice)
	for _, c := range []Category{CategoryPowder, CategoryGranular, CategoryFineSpice, CategoryLiquid, CategoryIrregular} {
		test.That(t, table.InCategory(c), test.ShouldNotBeEmpty)
	}
}

func TestLookup(t *testing.T) {
	table, err := DefaultTable()
	test.That(t, err, test.ShouldBeNil)

	m, ok := table.Lookup("  RICE ")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, m.Name, test.ShouldEqual, "rice")
	test.That(t, m.Category, test.ShouldEqual, CategoryGranular)

	// Exact beats substring.
	m, ok = table.Lookup("powdered sugar")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, m.Category, test.ShouldEqual, CategoryPowder)

	// The query contains an entry name.
	m, ok = table.Lookup("jasmine rice")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, m.Name, test.ShouldEqual, "rice")

	// An entry name contains the query.
	m, ok = table.Lookup("cocoa")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, m.Name, test.ShouldEqual, "cocoa powder")

	_, ok = table.Lookup("uranium")
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = table.Lookup("")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestWeightGrams(t *testing.T) {
	m := Material{Name: "water", Density: 1.0, Category: CategoryLiquid}
	test.That(t, m.WeightGrams(250), test.ShouldEqual, 250.0)
	m.Density = 0.85
	test.That(t, m.WeightGrams(100), test.ShouldAlmostEqual, 85.0)
	test.That(t, m.WeightGrams(-5), test.ShouldEqual, 0.0)
}

func TestLoadTableValidates(t *testing.T) {
	_, err := LoadTable(strings.NewReader("materials:\n  - {name: lead, density: 11.3, category: metal}\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown category")

	_, err = LoadTable(strings.NewReader("materials:\n  - {name: air, density: 0, category: unknown}\n"))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = LoadTable(strings.NewReader("materials:\n  - {name: x, density: 1, category: solid, colour: red}\n"))
	test.That(t, err, test.ShouldNotBeNil)

	table, err := LoadTable(strings.NewReader("materials:\n  - {name: Sand, density: 1.6, category: granular}\n"))
	test.That(t, err, test.ShouldBeNil)
	m, ok := table.Lookup("sand")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, m.Density, test.ShouldEqual, 1.6)
}

func TestCategoryPredicates(t *testing.T) {
	test.That(t, CategoryFineSpice.PowderLike(), test.ShouldBeTrue)
	test.That(t, CategorySolid.PowderLike(), test.ShouldBeFalse)
	test.That(t, CategoryDenseSolid.SolidLike(), test.ShouldBeTrue)
	test.That(t, Category("metal").Valid(), test.ShouldBeFalse)
}
