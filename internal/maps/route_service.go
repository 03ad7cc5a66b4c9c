// README: Google Maps adapters: Distance Matrix for distance/ETA and Directions for road geometry.
package maps

import (
	"context"
	"errors"
	"fmt"

	gmaps "googlemaps.github.io/maps"

	"ridedispatch/internal/types"
)

// GoogleService serves both DistanceProvider and RouteProvider from one
// Maps client.
type GoogleService struct {
	client *gmaps.Client
}

func NewGoogleService(apiKey string) (*GoogleService, error) {
	if apiKey == "" {
		return nil, errors.New("maps api key is empty")
	}
	client, err := gmaps.NewClient(gmaps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleService{client: client}, nil
}

// Distance returns the driving distance and duration between two points.
func (s *GoogleService) Distance(ctx context.Context, origin, destination types.Point) (Estimate, error) {
	resp, err := s.client.DistanceMatrix(ctx, &gmaps.DistanceMatrixRequest{
		Origins:      []string{origin.LatLng()},
		Destinations: []string{destination.LatLng()},
		Mode:         gmaps.TravelModeDriving,
	})
	if err != nil {
		return Estimate{}, fmt.Errorf("%w: distance matrix: %v", types.ErrUpstreamUnavailable, err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return Estimate{}, fmt.Errorf("%w: distance matrix returned no elements", types.ErrUpstreamUnavailable)
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return Estimate{}, fmt.Errorf("%w: distance matrix element status %s", types.ErrUpstreamUnavailable, el.Status)
	}
	return Estimate{
		Meters:       float64(el.Distance.Meters),
		Seconds:      el.Duration.Seconds(),
		DistanceText: el.Distance.HumanReadable,
		DurationText: durationText(el.Duration.Seconds()),
		Source:       SourceProvider,
	}, nil
}

// Route returns the decoded overview polyline of the fastest driving route.
func (s *GoogleService) Route(ctx context.Context, origin, destination types.Point) (Route, error) {
	routes, _, err := s.client.Directions(ctx, &gmaps.DirectionsRequest{
		Origin:      origin.LatLng(),
		Destination: destination.LatLng(),
		Mode:        gmaps.TravelModeDriving,
	})
	if err != nil {
		return Route{}, fmt.Errorf("%w: directions: %v", types.ErrUpstreamUnavailable, err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Route{}, fmt.Errorf("%w: no route found", types.ErrUpstreamUnavailable)
	}
	latlngs, err := routes[0].OverviewPolyline.Decode()
	if err != nil {
		return Route{}, fmt.Errorf("%w: decode polyline: %v", types.ErrUpstreamUnavailable, err)
	}
	pts := make([]types.Point, 0, len(latlngs))
	for _, ll := range latlngs {
		pts = append(pts, types.Point{Lat: ll.Lat, Lng: ll.Lng})
	}
	var meters, seconds float64
	for _, leg := range routes[0].Legs {
		meters += float64(leg.Distance.Meters)
		seconds += leg.Duration.Seconds()
	}
	return Route{Points: pts, Meters: meters, Seconds: seconds, Source: SourceProvider}, nil
}
