// Package refdata loads the curated reference dataset used as a
// deduplication target. The file is read-only input; the pipeline never
// writes it back.
package refdata

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wanderset/places-cli/internal/model"
)

// Load reads reference places from a .csv or .yaml/.yml file, dispatching
// on the extension. Rows without a name or with unparsable coordinates are
// logged and skipped; a file that yields zero usable rows is an error.
func Load(path string) ([]model.Reference, error) {
	var (
		refs []model.Reference
		err  error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		refs, err = loadCSV(path)
	case ".yaml", ".yml":
		refs, err = loadYAML(path)
	default:
		return nil, eris.Errorf("refdata: unsupported file extension %q", ext)
	}
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, eris.Errorf("refdata: no usable rows in %s", path)
	}

	zap.L().Info("loaded reference dataset",
		zap.String("path", path),
		zap.Int("places", len(refs)),
	)
	return refs, nil
}

func loadCSV(path string) ([]model.Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: open CSV")
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "refdata: read CSV header")
	}
	colIdx := mapColumns(header)

	var (
		refs    []model.Reference
		skipped int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "refdata: read CSV row")
		}

		r := model.Reference{
			Name:    getCol(record, colIdx, "name"),
			Address: getCol(record, colIdx, "address"),
		}
		lat, latErr := strconv.ParseFloat(firstCol(record, colIdx, "lat", "latitude"), 64)
		lon, lonErr := strconv.ParseFloat(firstCol(record, colIdx, "lon", "lng", "longitude"), 64)
		if r.Name == "" || latErr != nil || lonErr != nil {
			skipped++
			continue
		}
		r.Lat, r.Lon = lat, lon
		refs = append(refs, r)
	}

	if skipped > 0 {
		zap.L().Warn("skipped malformed reference rows",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return refs, nil
}

// loadYAML reads a top-level sequence of reference places.
func loadYAML(path string) ([]model.Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: read YAML")
	}

	var rows []model.Reference
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "refdata: parse YAML")
	}

	var (
		refs    []model.Reference
		skipped int
	)
	for _, r := range rows {
		if r.Name == "" || (r.Lat == 0 && r.Lon == 0) {
			skipped++
			continue
		}
		refs = append(refs, r)
	}

	if skipped > 0 {
		zap.L().Warn("skipped malformed reference rows",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return refs, nil
}

func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// firstCol returns the first non-empty value among aliased column names.
func firstCol(record []string, colIdx map[string]int, names ...string) string {
	for _, name := range names {
		if v := getCol(record, colIdx, name); v != "" {
			return v
		}
	}
	return ""
}
