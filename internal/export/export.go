// Package export renders collected items for download.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kitascrape-engine/internal/domain"
)

var csvHeader = []string{
	"ID", "Name", "Street Address", "Postal Code", "City", "State",
	"Phone", "Email", "Website", "Capacity", "Age Range",
}

const bom = "\ufeff"

// CSV returns a UTF-8 CSV document with a byte order mark so spreadsheet
// tools pick the right encoding. Every field is quoted.
func CSV(items []domain.Item) []byte {
	var b bytes.Buffer
	b.WriteString(bom)
	writeRow(&b, csvHeader)
	for _, it := range items {
		capacity := ""
		if it.Capacity > 0 {
			capacity = strconv.Itoa(it.Capacity)
		}
		writeRow(&b, []string{
			it.ID, it.Name, it.AddressLine, it.PostalCode, it.City, string(it.RegionID),
			it.Phone, it.Email, it.Website, capacity, it.AgeRange,
		})
	}
	return b.Bytes()
}

func writeRow(b *bytes.Buffer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(c, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

// JSON returns items as an indented array. A nil slice encodes as [].
func JSON(items []domain.Item) ([]byte, error) {
	if items == nil {
		items = []domain.Item{}
	}
	return json.MarshalIndent(items, "", "  ")
}

// Filename names a download, e.g. kitas_2024-05-06_42.csv or kitas_2024-05-06.json.
func Filename(ext string, at time.Time, count int) string {
	day := at.UTC().Format("2006-01-02")
	if ext == "csv" {
		return fmt.Sprintf("kitas_%s_%d.csv", day, count)
	}
	return fmt.Sprintf("kitas_%s.%s", day, ext)
}
