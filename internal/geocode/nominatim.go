package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/carwash-booking/internal/models"
)

// Geocoder resolves free text to coordinates and back. A nil result with a
// nil error means the lookup found nothing.
type Geocoder interface {
	Forward(ctx context.Context, text string) (*models.Coord, error)
	Reverse(ctx context.Context, lat, lon float64) (*Components, error)
}

type Components struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Display    string `json:"display"`
}

// NominatimClient performs lookups against a Nominatim compatible HTTP server.
type NominatimClient struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

func NewNominatimClient(endpoint string) *NominatimClient {
	return &NominatimClient{Endpoint: endpoint, UserAgent: "carwash-booking/1.0", Client: &http.Client{Timeout: 3 * time.Second}}
}

func (n *NominatimClient) Forward(ctx context.Context, text string) (*models.Coord, error) {
	q := url.Values{"q": {text}, "format": {"json"}, "limit": {"1"}}
	var out []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := n.get(ctx, "/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(out[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode lat: %w", err)
	}
	lon, err := strconv.ParseFloat(out[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode lon: %w", err)
	}
	return &models.Coord{Lat: lat, Lon: lon}, nil
}

func (n *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (*Components, error) {
	q := url.Values{
		"lat":    {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":    {strconv.FormatFloat(lon, 'f', 6, 64)},
		"format": {"json"},
	}
	var out struct {
		DisplayName string `json:"display_name"`
		Error       string `json:"error"`
		Address     struct {
			Road     string `json:"road"`
			City     string `json:"city"`
			Town     string `json:"town"`
			Postcode string `json:"postcode"`
			Country  string `json:"country"`
		} `json:"address"`
	}
	if err := n.get(ctx, "/reverse?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, nil
	}
	city := out.Address.City
	if city == "" {
		city = out.Address.Town
	}
	return &Components{
		Street:     out.Address.Road,
		City:       city,
		PostalCode: out.Address.Postcode,
		Country:    out.Address.Country,
		Display:    out.DisplayName,
	}, nil
}

func (n *NominatimClient) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.Endpoint+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", n.UserAgent)
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocoder status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
