package fetch

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// BBox is a geographic bounding box in WGS84 degrees.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// ParseBBox parses a "minLat,minLon,maxLat,maxLon" string, the format used
// by the --bbox flag.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, eris.Errorf("fetch: bbox must have 4 comma-separated values, got %d", len(parts))
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, eris.Wrapf(err, "fetch: parse bbox value %q", p)
		}
		vals[i] = v
	}

	b := BBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	return b, nil
}

// Validate reports whether the box is a well-formed region. A malformed box
// is a fatal configuration error; the fetch must not proceed.
func (b BBox) Validate() error {
	if b.MinLat < -90 || b.MaxLat > 90 {
		return eris.Errorf("fetch: latitude out of range [%f, %f]", b.MinLat, b.MaxLat)
	}
	if b.MinLon < -180 || b.MaxLon > 180 {
		return eris.Errorf("fetch: longitude out of range [%f, %f]", b.MinLon, b.MaxLon)
	}
	if b.MinLat >= b.MaxLat {
		return eris.Errorf("fetch: min latitude %f must be below max %f", b.MinLat, b.MaxLat)
	}
	if b.MinLon >= b.MaxLon {
		return eris.Errorf("fetch: min longitude %f must be below max %f", b.MinLon, b.MaxLon)
	}
	return nil
}

// SplitGrid partitions the box into an n×n grid of equal-degree cells.
// n=1 returns the box itself, the degenerate "no grid" fetch. The grid
// exists to beat the provider's per-query result ceiling: many small
// viewports return more total places than one large one.
func (b BBox) SplitGrid(n int) []BBox {
	if n < 1 {
		n = 1
	}

	latStep := (b.MaxLat - b.MinLat) / float64(n)
	lonStep := (b.MaxLon - b.MinLon) / float64(n)

	cells := make([]BBox, 0, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			cells = append(cells, BBox{
				MinLat: b.MinLat + float64(row)*latStep,
				MinLon: b.MinLon + float64(col)*lonStep,
				MaxLat: b.MinLat + float64(row+1)*latStep,
				MaxLon: b.MinLon + float64(col+1)*lonStep,
			})
		}
	}
	return cells
}
