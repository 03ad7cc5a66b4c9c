package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/types"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		r    Report
		want Condition
	}{
		{"thunderstorm beats precipitation", Report{Code: 95, Precipitation: 10}, Stormy},
		{"heavy precipitation", Report{Code: 0, Precipitation: 6}, Rainy},
		{"violent showers", Report{Code: 82}, Rainy},
		{"heavy snow", Report{Code: 75}, Snowy},
		{"moderate precipitation", Report{Code: 1, Precipitation: 1.5}, Rainy},
		{"slight rain", Report{Code: 61}, Rainy},
		{"slight snow", Report{Code: 71}, Snowy},
		{"drizzle", Report{Code: 53}, Rainy},
		{"wind without rain", Report{Code: 0, WindSpeed: 20}, Windy},
		{"wind with light rain is not windy", Report{Code: 0, WindSpeed: 20, Precipitation: 0.5}, Clear},
		{"fog", Report{Code: 45}, Foggy},
		{"overcast", Report{Code: 3}, Cloudy},
		{"partly cloudy", Report{Code: 2}, Cloudy},
		{"mainly clear", Report{Code: 1}, Clear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.r))
		})
	}
}

func TestClientCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "15.83", r.URL.Query().Get("latitude"))
		assert.Contains(t, r.URL.Query().Get("current"), "weather_code")
		_, _ = w.Write([]byte(`{"latitude":15.83,"longitude":78.04,"current":{"time":"2026-01-01T10:00","temperature_2m":31.2,"relative_humidity_2m":40,"weather_code":63,"wind_speed_10m":7.5,"precipitation":2.1}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	r, err := c.Current(context.Background(), types.Point{Lat: 15.83, Lng: 78.04})
	require.NoError(t, err)
	assert.Equal(t, 63, r.Code)
	assert.Equal(t, "Moderate rain", r.Description)
	assert.Equal(t, 2.1, r.Precipitation)

	cond, err := c.CurrentCondition(context.Background(), types.Point{Lat: 15.83, Lng: 78.04})
	require.NoError(t, err)
	assert.Equal(t, Rainy, cond)
}

func TestClientFailuresAreUpstreamUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"no current block", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"latitude":1}`)) }},
		{"garbage", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`<html>`)) }},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := NewClient(srv.URL, 50*time.Millisecond)
			_, err := c.CurrentCondition(context.Background(), types.Point{})
			assert.ErrorIs(t, err, types.ErrUpstreamUnavailable)
		})
	}
}
