package geo

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/prospector/internal/resilience"
)

const cbsaShapefileURL = "https://www2.census.gov/geo/tiger/TIGER2024/CBSA/tl_2024_us_cbsa.zip"

// lsadMetropolitan marks metropolitan statistical areas in CBSA data.
// Micropolitan areas (M2) are skipped; they add little aliasing value.
const lsadMetropolitan = "M1"

// ImportMetroAliases downloads the Census Bureau CBSA shapefile and writes
// a locality alias file derived from metropolitan-area names. A CBSA named
// "Denver-Aurora-Lakewood, CO" yields aliases of "Denver, CO". The output
// is a regular overrides file for Table.LoadAliases.
func ImportMetroAliases(ctx context.Context, httpClient *http.Client, tempDir, outPath string) (int, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	log := zap.L().With(zap.String("component", "geo.loader"))

	zipPath := filepath.Join(tempDir, "tl_2024_us_cbsa.zip")
	log.Info("downloading CBSA shapefile", zap.String("url", cbsaShapefileURL))
	if err := downloadFile(ctx, httpClient, cbsaShapefileURL, zipPath); err != nil {
		return 0, eris.Wrap(err, "geo: download CBSA shapefile")
	}

	extractDir := filepath.Join(tempDir, "cbsa")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return 0, eris.Wrap(err, "geo: create extract dir")
	}
	if err := extractZIP(zipPath, extractDir); err != nil {
		return 0, eris.Wrap(err, "geo: extract CBSA ZIP")
	}

	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return 0, eris.Wrap(err, "geo: find .shp file")
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return 0, eris.Wrap(err, "geo: open shapefile")
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, "NAME")
	lsadIdx := fieldIndex(reader, "LSAD")
	if nameIdx < 0 || lsadIdx < 0 {
		return 0, eris.New("geo: required shapefile fields (NAME, LSAD) not found")
	}

	entries := make(map[string][]string)
	for reader.Next() {
		if _, shape := reader.Shape(); shape == nil {
			continue
		}
		if strings.TrimSpace(reader.Attribute(lsadIdx)) != lsadMetropolitan {
			continue
		}

		name := strings.TrimSpace(reader.Attribute(nameIdx))
		canonical, aliases, ok := MetroAliases(name)
		if !ok {
			continue
		}
		entries[canonical] = append(entries[canonical], aliases...)
	}

	if err := WriteAliasFile(outPath, entries); err != nil {
		return 0, err
	}

	log.Info("metro aliases written",
		zap.Int("areas", len(entries)),
		zap.String("path", outPath),
	)
	return len(entries), nil
}

// MetroAliases derives a canonical locality and alias spellings from a
// CBSA display name like "Denver-Aurora-Lakewood, CO" or
// "Chicago-Naperville-Elgin, IL-IN-WI". The principal city and first
// state form the canonical entry; every named city plus the full metro
// string become aliases.
func MetroAliases(cbsaName string) (canonical string, aliases []string, ok bool) {
	cityPart, regionPart, found := splitCityRegion(strings.ToLower(cbsaName))
	if !found {
		return "", nil, false
	}

	cities := strings.Split(cityPart, "-")
	states := strings.Split(regionPart, "-")
	principal := strings.TrimSpace(cities[0])
	state := strings.TrimSpace(states[0])
	if principal == "" || state == "" {
		return "", nil, false
	}

	caser := cases.Title(language.English)
	canonical = caser.String(principal) + ", " + strings.ToUpper(state)

	seen := make(map[string]bool)
	add := func(a string) {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			return
		}
		seen[a] = true
		aliases = append(aliases, a)
	}
	for _, c := range cities {
		add(c)
	}
	add(strings.ToLower(strings.TrimSpace(cbsaName)))

	return canonical, aliases, true
}

// downloadFile downloads a URL to a local file, retrying transient
// failures with backoff.
func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("census", "download")
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return fetchToFile(ctx, client, url, dest)
	})
}

// fetchToFile performs one download attempt. Retryable HTTP statuses are
// marked transient so the caller's retry policy can distinguish them from
// hard failures like a 404.
func fetchToFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("download returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp.Body); err != nil {
		return eris.Wrap(err, "write file")
	}

	return nil
}

// extractZIP extracts a ZIP archive to the destination directory.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		name := filepath.Base(f.Name)
		destPath := filepath.Join(destDir, name)

		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}

		outFile, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}

		if _, err := io.Copy(outFile, rc); err != nil {
			_ = outFile.Close()
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		_ = outFile.Close()
		_ = rc.Close()
	}

	return nil
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}
