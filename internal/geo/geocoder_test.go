package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestPostcodeClientSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/postcodes/SW1A%201AA" && r.URL.Path != "/postcodes/SW1A 1AA" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":200,"result":{"latitude":51.501009,"longitude":-0.141588}}`))
	}))
	defer srv.Close()

	client := NewPostcodeClient(srv.URL, zerolog.Nop())
	coords, err := client.Geocode(context.Background(), "SW1A 1AA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coords.Latitude != 51.501009 || coords.Longitude != -0.141588 {
		t.Errorf("unexpected coordinates: %+v", coords)
	}
}

func TestPostcodeClientRejectedPostcode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"error":"Postcode not found"}`))
	}))
	defer srv.Close()

	client := NewPostcodeClient(srv.URL, zerolog.Nop())
	_, err := client.Geocode(context.Background(), "NOT A POSTCODE")
	if !errors.Is(err, ErrGeocodeUnavailable) {
		t.Errorf("expected ErrGeocodeUnavailable, got %v", err)
	}
}

func TestPostcodeClientMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":200,"result":{}}`))
	}))
	defer srv.Close()

	client := NewPostcodeClient(srv.URL, zerolog.Nop())
	_, err := client.Geocode(context.Background(), "SW1A 1AA")
	if !errors.Is(err, ErrGeocodeUnavailable) {
		t.Errorf("expected ErrGeocodeUnavailable, got %v", err)
	}
}

func TestNormalizePostcode(t *testing.T) {
	if got := NormalizePostcode("sw1a 1aa"); got != "SW1A1AA" {
		t.Errorf("unexpected normalization: %q", got)
	}
}
