package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dispatch/internal/domain"
	"dispatch/pkg/client"
	"dispatch/pkg/logger"
	"dispatch/pkg/ratelimit"
)

// unreachableSentinel is the distance/duration value the mapping provider's
// wire contract uses to mark an unreachable cell.
const unreachableSentinel = 999999

// HTTPProvider implements Provider against the mapping provider's wire
// contract: lon,lat pipe-joined origins/destinations, mode in
// {driving,truck}, rows[i].elements[j] with distance/duration/
// duration_in_traffic, and the 999999 unreachable sentinel.
type HTTPProvider struct {
	httpClient *client.RetryingClient
	limiter    ratelimit.Limiter
	baseURL    string
	apiKey     string
}

// NewHTTPProvider builds an HTTPProvider rate-limited per cfg.
func NewHTTPProvider(baseURL, apiKey string, limiter ratelimit.Limiter, requestTimeout time.Duration) *HTTPProvider {
	cfg := client.DefaultClientConfig(baseURL)
	if requestTimeout > 0 {
		cfg.Timeout = requestTimeout
	}
	return &HTTPProvider{
		httpClient: client.NewHTTPClient(cfg),
		limiter:    limiter,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type geocodeResponse struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Found bool    `json:"found"`
}

// Geocode resolves a free-text address into a coordinate.
func (p *HTTPProvider) Geocode(ctx context.Context, text string) (domain.Coordinate, error) {
	if err := p.await(ctx); err != nil {
		return domain.Coordinate{}, err
	}

	url := fmt.Sprintf("%s/geocode?q=%s&key=%s", p.baseURL, text, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.Coordinate{}, ErrQuota
	}
	if resp.StatusCode >= 500 {
		return domain.Coordinate{}, ErrUnavailable
	}

	var gr geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: decoding geocode response: %v", ErrUnavailable, err)
	}
	if !gr.Found {
		return domain.Coordinate{}, ErrNotFound
	}
	return domain.Coordinate{Lat: gr.Lat, Lon: gr.Lon}, nil
}

type routeResponse struct {
	Polyline string `json:"polyline"`
	Distance struct {
		Value float64 `json:"value"`
	} `json:"distance"`
	Duration struct {
		Value float64 `json:"value"`
	} `json:"duration"`
	DurationInTraffic struct {
		Value float64 `json:"value"`
	} `json:"duration_in_traffic"`
	Segments []Segment `json:"segments"`
}

// Route looks up a single origin→dest route, optionally via waypoints.
func (p *HTTPProvider) Route(ctx context.Context, origin, dest domain.Coordinate, waypoints []domain.Coordinate, vehicleKind VehicleKind) (*RouteResult, error) {
	if err := p.await(ctx); err != nil {
		return nil, err
	}

	body := map[string]any{
		"origin":      lonLat(origin),
		"destination": lonLat(dest),
		"waypoints":   coordsToLonLat(waypoints),
		"mode":        string(vehicleKind),
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/route", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrQuota
	}
	if resp.StatusCode >= 500 {
		return nil, ErrUnavailable
	}

	var rr routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("%w: decoding route response: %v", ErrUnavailable, err)
	}

	return &RouteResult{
		Polyline:     rr.Polyline,
		DistanceM:    rr.Distance.Value,
		FreeTimeS:    rr.Duration.Value,
		TrafficTimeS: rr.DurationInTraffic.Value,
		Segments:     rr.Segments,
	}, nil
}

type matrixResponse struct {
	Rows []struct {
		Elements []struct {
			Distance struct {
				Value float64 `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value float64 `json:"value"`
			} `json:"duration"`
			DurationInTraffic struct {
				Value float64 `json:"value"`
			} `json:"duration_in_traffic"`
			Status string `json:"status"`
		} `json:"elements"`
	} `json:"rows"`
}

// Matrix computes distance/time matrices between origins and destinations.
func (p *HTTPProvider) Matrix(ctx context.Context, origins, destinations []domain.Coordinate, vehicleKind VehicleKind) (*MatrixResult, error) {
	if err := p.await(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/matrix?origins=%s&destinations=%s&mode=%s&key=%s",
		p.baseURL,
		joinLonLat(origins),
		joinLonLat(destinations),
		string(vehicleKind),
		p.apiKey,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrQuota
	}
	if resp.StatusCode >= 500 {
		return nil, ErrUnavailable
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var mr matrixResponse
	if err := json.Unmarshal(data, &mr); err != nil {
		return nil, fmt.Errorf("%w: decoding matrix response: %v", ErrUnavailable, err)
	}

	n := len(origins)
	m := len(destinations)
	d := make([][]float64, n)
	t := make([][]float64, n)
	tt := make([][]float64, n)
	for i := 0; i < n && i < len(mr.Rows); i++ {
		d[i] = make([]float64, m)
		t[i] = make([]float64, m)
		tt[i] = make([]float64, m)
		for j := 0; j < m && j < len(mr.Rows[i].Elements); j++ {
			el := mr.Rows[i].Elements[j]
			if el.Status != "" && el.Status != "OK" {
				d[i][j] = unreachableSentinel
				t[i][j] = unreachableSentinel
				tt[i][j] = unreachableSentinel
				continue
			}
			d[i][j] = el.Distance.Value
			t[i][j] = el.Duration.Value
			tt[i][j] = el.DurationInTraffic.Value
		}
	}

	return &MatrixResult{D: d, T: t, TTraffic: tt}, nil
}

// await acquires the rate-limiter slot (or fails with ErrQuota on timeout).
func (p *HTTPProvider) await(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx, "geo"); err != nil {
		logger.Warn("geo: rate limiter wait failed", "error", err)
		return fmt.Errorf("%w: %v", ErrQuota, err)
	}
	return nil
}

func lonLat(c domain.Coordinate) string {
	return strconv.FormatFloat(c.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lat, 'f', 6, 64)
}

func coordsToLonLat(cs []domain.Coordinate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = lonLat(c)
	}
	return out
}

func joinLonLat(cs []domain.Coordinate) string {
	return strings.Join(coordsToLonLat(cs), "|")
}
