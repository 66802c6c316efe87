package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/example/carwash-booking/internal/models"
	"github.com/example/carwash-booking/internal/observability"
)

// LocationKind tags how the remote store encoded a worker location.
type LocationKind int

const (
	LocationMissing LocationKind = iota
	LocationPoint                // "POINT(lon lat)" text
	LocationGeoJSON              // {"type":"Point","coordinates":[lon,lat]}
	LocationUnrecognized
)

func (k LocationKind) String() string {
	switch k {
	case LocationMissing:
		return "missing"
	case LocationPoint:
		return "point"
	case LocationGeoJSON:
		return "geojson"
	default:
		return "unrecognized"
	}
}

type Location struct {
	Kind  LocationKind
	Coord models.Coord
}

// ParseLocation classifies raw. Accepted forms, tried in order: JSON null or
// empty, a JSON string holding point text, bare point text, and an object
// with a two element coordinates array.
func ParseLocation(raw []byte) Location {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Location{Kind: LocationMissing}
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Location{Kind: LocationUnrecognized}
		}
		if strings.TrimSpace(s) == "" {
			return Location{Kind: LocationMissing}
		}
		if c, err := ParsePoint(s); err == nil {
			return Location{Kind: LocationPoint, Coord: c}
		}
		return Location{Kind: LocationUnrecognized}
	case '{':
		var obj struct {
			Coordinates []float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil || len(obj.Coordinates) != 2 {
			return Location{Kind: LocationUnrecognized}
		}
		c := models.Coord{Lon: obj.Coordinates[0], Lat: obj.Coordinates[1]}
		if !ValidLatLon(c.Lat, c.Lon) {
			return Location{Kind: LocationUnrecognized}
		}
		return Location{Kind: LocationGeoJSON, Coord: c}
	}
	if c, err := ParsePoint(string(raw)); err == nil {
		return Location{Kind: LocationPoint, Coord: c}
	}
	return Location{Kind: LocationUnrecognized}
}

// ParsePoint reads WKT point text, with or without an SRID prefix.
func ParsePoint(s string) (models.Coord, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ';'); i >= 0 && strings.HasPrefix(strings.ToUpper(s), "SRID=") {
		s = s[i+1:]
	}
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "POINT") {
		return models.Coord{}, fmt.Errorf("not a point: %q", s)
	}
	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return models.Coord{}, fmt.Errorf("malformed point: %q", s)
	}
	parts := strings.Fields(s[open+1 : end])
	if len(parts) != 2 {
		return models.Coord{}, fmt.Errorf("malformed point: %q", s)
	}
	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return models.Coord{}, fmt.Errorf("point longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return models.Coord{}, fmt.Errorf("point latitude: %w", err)
	}
	if !ValidLatLon(lat, lon) {
		return models.Coord{}, fmt.Errorf("point out of range: %q", s)
	}
	return models.Coord{Lat: lat, Lon: lon}, nil
}

// EncodePoint is the inverse of ParsePoint.
func EncodePoint(c models.Coord) string {
	return "POINT(" + strconv.FormatFloat(c.Lon, 'f', -1, 64) + " " + strconv.FormatFloat(c.Lat, 'f', -1, 64) + ")"
}

// Decoder resolves locations, substituting Default when none can be read.
type Decoder struct {
	Default models.Coord
	Logger  *slog.Logger
}

// Decode returns the decoded coordinate and whether the fallback was used.
// Every fallback is logged and counted.
func (d Decoder) Decode(workerID string, raw []byte) (models.Coord, bool) {
	loc := ParseLocation(raw)
	if loc.Kind == LocationPoint || loc.Kind == LocationGeoJSON {
		return loc.Coord, false
	}
	observability.LocationFallbacks.Inc()
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("worker location unreadable, using default coordinate",
		"worker_id", workerID, "kind", loc.Kind.String(), "lat", d.Default.Lat, "lon", d.Default.Lon)
	return d.Default, true
}
