package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospector/internal/model"
)

func sampleRecords() []model.EntityRecord {
	return []model.EntityRecord{
		{
			Name:            "Acme Roofing",
			Website:         "https://acmeroofing.com",
			LocalityDisplay: "Denver, CO",
			Industry:        "Roofing",
			SizeEstimate:    "11-50 employees",
			FoundedYear:     2005,
			LinkedInURL:     "https://linkedin.com/company/acme-roofing",
			Description:     "Residential and commercial roofing.",
			SourceURLs:      []string{"https://acmeroofing.com/about", "https://example.com/listing"},
			Accepted:        true,
		},
		{
			Name:     "Summit Exteriors",
			Accepted: true,
		},
	}
}

func TestRecordRow(t *testing.T) {
	records := sampleRecords()

	full := recordRow(&records[0])
	require.Len(t, full, len(exportColumns))
	assert.Equal(t, "Acme Roofing", full[0])
	assert.Equal(t, "https://acmeroofing.com", full[1])
	assert.Equal(t, "Denver, CO", full[2])
	assert.Equal(t, "Roofing", full[3])
	assert.Equal(t, "11-50 employees", full[4])
	assert.Equal(t, "2005", full[5])
	assert.Equal(t, "https://linkedin.com/company/acme-roofing", full[6])
	assert.Equal(t, "Residential and commercial roofing.", full[7])
	assert.Equal(t, "100", full[8])
	assert.Equal(t, "https://acmeroofing.com/about; https://example.com/listing", full[9])

	sparse := recordRow(&records[1])
	assert.Equal(t, "Summit Exteriors", sparse[0])
	assert.Equal(t, "", sparse[5], "zero founded year stays blank")
	assert.Equal(t, "25", sparse[8])
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prospects.csv")
	require.NoError(t, WriteCSV(sampleRecords(), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportColumns, rows[0])
	assert.Equal(t, "Acme Roofing", rows[1][0])
	assert.Equal(t, "2005", rows[1][5])
	assert.Equal(t, "Summit Exteriors", rows[2][0])
	assert.Equal(t, "", rows[2][1])
}

func TestWriteCSV_EmptyStillWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, WriteCSV(nil, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, exportColumns, rows[0])
}

func TestWriteCSV_BadPath(t *testing.T) {
	err := WriteCSV(sampleRecords(), filepath.Join(t.TempDir(), "missing-dir", "out.csv"))
	assert.Error(t, err)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prospects.xlsx")
	require.NoError(t, WriteXLSX(sampleRecords(), path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Prospects", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	header := make([]string, len(sheet.Rows[0].Cells))
	for i, cell := range sheet.Rows[0].Cells {
		header[i] = cell.String()
	}
	assert.Equal(t, exportColumns, header)

	assert.Equal(t, "Acme Roofing", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "100", sheet.Rows[1].Cells[8].String())
	assert.Equal(t, "Summit Exteriors", sheet.Rows[2].Cells[0].String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde", truncate("abcdef", 5))
	assert.Equal(t, "héll", truncate("héllo", 4), "runes, not bytes")
	assert.Equal(t, "", truncate("", 5))
}

func TestSplitLocality(t *testing.T) {
	city, region := splitLocality("Denver, CO")
	assert.Equal(t, "Denver", city)
	assert.Equal(t, "CO", region)

	city, region = splitLocality("Chicago")
	assert.Equal(t, "Chicago", city)
	assert.Equal(t, "", region)

	city, region = splitLocality("")
	assert.Equal(t, "", city)
	assert.Equal(t, "", region)
}
