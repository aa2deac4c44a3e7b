package place

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// encodeLocation converts a lat/lon pair to EWKB point bytes with SRID
// 4326, in lon/lat axis order as PostGIS expects.
func encodeLocation(lat, lon float64) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "place: encode location")
	}
	return data, nil
}
