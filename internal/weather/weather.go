// README: Current-conditions lookup against Open-Meteo and the condition categories used for pricing.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"ridedispatch/internal/types"
)

type Condition string

const (
	Clear  Condition = "clear"
	Cloudy Condition = "cloudy"
	Rainy  Condition = "rainy"
	Snowy  Condition = "snowy"
	Stormy Condition = "stormy"
	Windy  Condition = "windy"
	Foggy  Condition = "foggy"
)

// Report is the subset of Open-Meteo current data the service uses.
type Report struct {
	TemperatureC  float64     `json:"temperature"`
	Humidity      float64     `json:"humidity"`
	Code          int         `json:"weatherCode"`
	Description   string      `json:"weatherDescription"`
	WindSpeed     float64     `json:"windSpeed"`
	Precipitation float64     `json:"precipitation"`
	Time          string      `json:"time"`
	Location      types.Point `json:"location"`
}

var descriptions = map[int]string{
	0: "Clear sky", 1: "Mainly clear", 2: "Partly cloudy", 3: "Overcast",
	45: "Foggy", 48: "Depositing rime fog",
	51: "Light drizzle", 53: "Moderate drizzle", 55: "Dense drizzle",
	56: "Light freezing drizzle", 57: "Dense freezing drizzle",
	61: "Slight rain", 63: "Moderate rain", 65: "Heavy rain",
	66: "Light freezing rain", 67: "Heavy freezing rain",
	71: "Slight snow fall", 73: "Moderate snow fall", 75: "Heavy snow fall", 77: "Snow grains",
	80: "Slight rain showers", 81: "Moderate rain showers", 82: "Violent rain showers",
	85: "Slight snow showers", 86: "Heavy snow showers",
	95: "Thunderstorm", 96: "Thunderstorm with slight hail", 99: "Thunderstorm with heavy hail",
}

// Categorize maps WMO codes, precipitation (mm) and wind (km/h) to a
// Condition. Rules are checked from most to least severe.
func Categorize(r Report) Condition {
	in := func(codes ...int) bool { return slices.Contains(codes, r.Code) }
	switch {
	case in(95, 96, 99):
		return Stormy
	case r.Precipitation > 5 || in(65, 67, 82):
		return Rainy
	case in(75, 77, 86):
		return Snowy
	case r.Precipitation > 1 || in(61, 63, 66, 80, 81):
		return Rainy
	case in(71, 73, 85):
		return Snowy
	case in(51, 53, 55, 56, 57):
		return Rainy
	case r.WindSpeed > 15 && r.Precipitation == 0:
		return Windy
	case in(45, 48):
		return Foggy
	case in(2, 3):
		return Cloudy
	}
	return Clear
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type forecastResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Current   *struct {
		Time          string   `json:"time"`
		Temperature   float64  `json:"temperature_2m"`
		Humidity      float64  `json:"relative_humidity_2m"`
		WeatherCode   int      `json:"weather_code"`
		WindSpeed     float64  `json:"wind_speed_10m"`
		Precipitation *float64 `json:"precipitation"`
	} `json:"current"`
}

// Current fetches current conditions at p. Every failure wraps
// types.ErrUpstreamUnavailable.
func (c *Client) Current(ctx context.Context, p types.Point) (Report, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(p.Lng, 'f', -1, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,weather_code,wind_speed_10m,precipitation")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Report{}, fmt.Errorf("%w: weather request: %v", types.ErrUpstreamUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("%w: weather: %v", types.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("%w: open-meteo status %d", types.ErrUpstreamUnavailable, resp.StatusCode)
	}
	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Report{}, fmt.Errorf("%w: decode weather: %v", types.ErrUpstreamUnavailable, err)
	}
	if body.Current == nil {
		return Report{}, fmt.Errorf("%w: open-meteo response without current block", types.ErrUpstreamUnavailable)
	}
	cur := body.Current
	r := Report{
		TemperatureC: cur.Temperature,
		Humidity:     cur.Humidity,
		Code:         cur.WeatherCode,
		Description:  "Unknown",
		WindSpeed:    cur.WindSpeed,
		Time:         cur.Time,
		Location:     types.Point{Lat: body.Latitude, Lng: body.Longitude},
	}
	if d, ok := descriptions[cur.WeatherCode]; ok {
		r.Description = d
	}
	if cur.Precipitation != nil {
		r.Precipitation = *cur.Precipitation
	}
	return r, nil
}

func (c *Client) CurrentCondition(ctx context.Context, p types.Point) (Condition, error) {
	r, err := c.Current(ctx, p)
	if err != nil {
		return "", err
	}
	return Categorize(r), nil
}
