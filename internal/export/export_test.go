package export

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitascrape-engine/internal/domain"
)

var sample = []domain.Item{
	{
		ID: "a-1", Name: `Kita "Sonnenschein"`, AddressLine: "Hauptstraße 5", PostalCode: "80331",
		City: "München", RegionID: "Bayern", Phone: "+49 89 123", Email: "info@kita.de",
		Website: "www.kita.de", Capacity: 45, AgeRange: "0-6 Jahre",
	},
	{ID: "a-2", Name: "Kita, Mitte", City: "Berlin", RegionID: "Berlin"},
}

func TestCSV(t *testing.T) {
	out := string(CSV(sample))
	require.True(t, strings.HasPrefix(out, "\ufeff"))

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "\ufeff"+`"ID","Name","Street Address","Postal Code","City","State","Phone","Email","Website","Capacity","Age Range"`, lines[0])
	assert.Equal(t, `"a-2","Kita, Mitte","","","Berlin","Berlin","","","","",""`, lines[2])

	// The output is valid CSV for a standard reader.
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff")))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, `Kita "Sonnenschein"`, rows[1][1])
	assert.Equal(t, "45", rows[1][9])
	assert.Equal(t, "München", rows[1][4])
}

func TestCSV_Empty(t *testing.T) {
	out := string(CSV(nil))
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestJSON(t *testing.T) {
	b, err := JSON(sample)
	require.NoError(t, err)
	assert.Contains(t, string(b), "\n  {")

	var back []domain.Item
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, sample, back)

	b, err = JSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}

func TestFilename(t *testing.T) {
	at := time.Date(2024, 5, 6, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "kitas_2024-05-06_12.csv", Filename("csv", at, 12))
	assert.Equal(t, "kitas_2024-05-06.json", Filename("json", at, 12))
}
