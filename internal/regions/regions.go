// Package regions lists the selectable work units: the German federal states
// as kita.de addresses them.
package regions

import (
	"strings"

	"kitascrape-engine/internal/domain"
)

type Region struct {
	ID   domain.UnitID `json:"id"`
	Slug string        `json:"slug"`
}

const BaseURL = "https://www.kita.de/kitas"

var catalog = []Region{
	{ID: "Baden-Württemberg", Slug: "baden-wuerttemberg"},
	{ID: "Bayern", Slug: "bayern"},
	{ID: "Berlin", Slug: "berlin"},
	{ID: "Brandenburg", Slug: "brandenburg"},
	{ID: "Bremen", Slug: "bremen"},
	{ID: "Hamburg", Slug: "hamburg"},
	{ID: "Hessen", Slug: "hessen"},
	{ID: "Mecklenburg-Vorpommern", Slug: "mecklenburg-vorpommern"},
	{ID: "Niedersachsen", Slug: "niedersachsen"},
	{ID: "Nordrhein-Westfalen", Slug: "nordrhein-westfalen"},
	{ID: "Rheinland-Pfalz", Slug: "rheinland-pfalz"},
	{ID: "Saarland", Slug: "saarland"},
	{ID: "Sachsen", Slug: "sachsen"},
	{ID: "Sachsen-Anhalt", Slug: "sachsen-anhalt"},
	{ID: "Schleswig-Holstein", Slug: "schleswig-holstein"},
	{ID: "Thüringen", Slug: "thueringen"},
}

var translit = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"Ä", "ae", "Ö", "oe", "Ü", "ue",
)

// All returns a copy of the catalog in display order.
func All() []Region {
	out := make([]Region, len(catalog))
	copy(out, catalog)
	return out
}

// Slug returns the URL slug for a unit. Units outside the catalog get a
// lower-cased, transliterated fallback.
func Slug(id domain.UnitID) string {
	for _, r := range catalog {
		if r.ID == id {
			return r.Slug
		}
	}
	s := translit.Replace(strings.ToLower(string(id)))
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "-")
}

// URL is the listing page for a unit.
func URL(id domain.UnitID) string {
	return BaseURL + "/" + Slug(id)
}

// Known reports whether id is in the catalog.
func Known(id domain.UnitID) bool {
	for _, r := range catalog {
		if r.ID == id {
			return true
		}
	}
	return false
}
