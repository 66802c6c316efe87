package geo

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/example/carwash-booking/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := HaversineKm(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineOneDegreeLatitude(t *testing.T) {
	d := HaversineKm(0, 0, 1, 0)
	if math.Abs(d-111.19) > 0.1 {
		t.Fatalf("expected ~111.19km, got %f", d)
	}
}

func TestPointRoundTrip(t *testing.T) {
	coords := []models.Coord{
		{Lat: 33.5731, Lon: -7.5898},
		{Lat: -33.86785, Lon: 151.20732},
		{Lat: 0.1 + 0.2, Lon: 1e-7},
	}
	for _, c := range coords {
		got, err := ParsePoint(EncodePoint(c))
		if err != nil {
			t.Fatalf("%v: %v", c, err)
		}
		if math.Abs(got.Lat-c.Lat) > 1e-9 || math.Abs(got.Lon-c.Lon) > 1e-9 {
			t.Fatalf("round trip mismatch: %v -> %v", c, got)
		}
	}
}

func TestParseLocationForms(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind LocationKind
		want models.Coord
	}{
		{"json point string", `"POINT(-7.6 33.5)"`, LocationPoint, models.Coord{Lat: 33.5, Lon: -7.6}},
		{"bare point text", `POINT(-7.6 33.5)`, LocationPoint, models.Coord{Lat: 33.5, Lon: -7.6}},
		{"srid prefix", `SRID=4326;POINT(2.35 48.85)`, LocationPoint, models.Coord{Lat: 48.85, Lon: 2.35}},
		{"geojson", `{"type":"Point","coordinates":[-7.6,33.5]}`, LocationGeoJSON, models.Coord{Lat: 33.5, Lon: -7.6}},
		{"null", `null`, LocationMissing, models.Coord{}},
		{"empty", ``, LocationMissing, models.Coord{}},
		{"empty string", `""`, LocationMissing, models.Coord{}},
		{"short coordinates", `{"coordinates":[1]}`, LocationUnrecognized, models.Coord{}},
		{"garbage", `"somewhere"`, LocationUnrecognized, models.Coord{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc := ParseLocation([]byte(tc.raw))
			if loc.Kind != tc.kind {
				t.Fatalf("kind: want %v got %v", tc.kind, loc.Kind)
			}
			if loc.Coord != tc.want {
				t.Fatalf("coord: want %v got %v", tc.want, loc.Coord)
			}
		})
	}
}

func TestDecoderFallbackIsLogged(t *testing.T) {
	var buf bytes.Buffer
	d := Decoder{Default: models.Coord{Lat: 1, Lon: 2}, Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	c, fell := d.Decode("w1", nil)
	if !fell || c != d.Default {
		t.Fatalf("expected fallback to default, got %v fell=%v", c, fell)
	}
	if !strings.Contains(buf.String(), "worker_id=w1") {
		t.Fatalf("expected fallback to be logged, got %q", buf.String())
	}

	buf.Reset()
	c, fell = d.Decode("w2", []byte(`"POINT(10 20)"`))
	if fell || c.Lat != 20 || c.Lon != 10 {
		t.Fatalf("unexpected decode %v fell=%v", c, fell)
	}
	if buf.Len() != 0 {
		t.Fatalf("successful decode must not log, got %q", buf.String())
	}
}
