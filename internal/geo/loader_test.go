package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetroAliases(t *testing.T) {
	tests := []struct {
		name          string
		cbsa          string
		wantCanonical string
		wantAliases   []string
		wantOK        bool
	}{
		{
			name:          "single state metro",
			cbsa:          "Denver-Aurora-Lakewood, CO",
			wantCanonical: "Denver, CO",
			wantAliases:   []string{"denver", "aurora", "lakewood", "denver-aurora-lakewood, co"},
			wantOK:        true,
		},
		{
			name:          "multi state metro",
			cbsa:          "Chicago-Naperville-Elgin, IL-IN-WI",
			wantCanonical: "Chicago, IL",
			wantAliases:   []string{"chicago", "naperville", "elgin", "chicago-naperville-elgin, il-in-wi"},
			wantOK:        true,
		},
		{
			name:          "two word principal city",
			cbsa:          "Boise City, ID",
			wantCanonical: "Boise City, ID",
			wantAliases:   []string{"boise city", "boise city, id"},
			wantOK:        true,
		},
		{name: "no region", cbsa: "Nowhere", wantOK: false},
		{name: "empty", cbsa: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canonical, aliases, ok := MetroAliases(tt.cbsa)
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantCanonical, canonical)
			assert.ElementsMatch(t, tt.wantAliases, aliases)
		})
	}
}

func TestWriteAliasFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metros.yaml")

	canonical, aliases, ok := MetroAliases("Provo-Orem, UT")
	require.True(t, ok)
	require.NoError(t, WriteAliasFile(path, map[string][]string{canonical: aliases}))

	tbl := NewTable()
	require.NoError(t, tbl.LoadAliases(path))

	assert.Equal(t, "Provo, UT", tbl.Normalize("orem"))
	assert.True(t, tbl.Matches("Orem, UT", "Provo, UT"))
	assert.True(t, tbl.Matches("Provo-Orem, UT", "Provo, UT"))
}

func TestDownloadFile_RetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("shapefile bytes"))
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "cbsa.zip")
	err := downloadFile(context.Background(), ts.Client(), ts.URL, dest)

	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "shapefile bytes", string(data))
}

func TestDownloadFile_PermanentStatusFailsFast(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	err := downloadFile(context.Background(), ts.Client(), ts.URL, filepath.Join(t.TempDir(), "x.zip"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), hits.Load())
}
