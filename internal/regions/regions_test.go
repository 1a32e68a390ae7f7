package regions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kitascrape-engine/internal/domain"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		id   domain.UnitID
		want string
	}{
		{"Baden-Württemberg", "baden-wuerttemberg"},
		{"Thüringen", "thueringen"},
		{"Berlin", "berlin"},
		{"Größere Stadt", "groessere-stadt"},
		{"Österreich", "oesterreich"},
	}
	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.id))
		})
	}
}

func TestCatalog(t *testing.T) {
	all := All()
	assert.Len(t, all, 16)
	all[0].Slug = "mutated"
	assert.Equal(t, "baden-wuerttemberg", All()[0].Slug)

	assert.True(t, Known("Hessen"))
	assert.False(t, Known("Texas"))
	assert.Equal(t, "https://www.kita.de/kitas/sachsen-anhalt", URL("Sachsen-Anhalt"))
}
