package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// OpenWeatherMap API endpoints.
const (
	owmCurrentURL  = "https://api.openweathermap.org/data/2.5/weather"
	owmForecastURL = "https://api.openweathermap.org/data/2.5/forecast"

	// owmBlockDuration is the length of one forecast block.
	owmBlockDuration = 3 * time.Hour
)

// OWMSource fetches observations from OpenWeatherMap.
//
// It combines the current-conditions endpoint (is it raining now, at what
// rate) with the 5-day/3-hour forecast endpoint (rain expected for the
// rest of the local day). A forecast block already in progress is prorated
// by its remaining fraction.
type OWMSource struct {
	apiKey        string
	lat, lon      float64
	rainThreshold float64
	location      *time.Location
	httpClient    *http.Client
	now           func() time.Time
}

// NewOWMSource creates an OpenWeatherMap source.
//
// Parameters:
//   - apiKey: OpenWeatherMap API key
//   - lat, lon: Site coordinates
//   - rainThreshold: Probability-of-precipitation above which a forecast
//     block counts towards WillRain (typically 0.5)
//   - loc: Local timezone, used to find end of day
func NewOWMSource(apiKey string, lat, lon, rainThreshold float64, loc *time.Location) *OWMSource {
	return &OWMSource{
		apiKey:        apiKey,
		lat:           lat,
		lon:           lon,
		rainThreshold: rainThreshold,
		location:      loc,
		httpClient:    &http.Client{},
		now:           time.Now,
	}
}

// Name implements Source.
func (s *OWMSource) Name() string { return "openweathermap" }

// owmCurrent mirrors the fields we need from /data/2.5/weather.
type owmCurrent struct {
	Weather []struct {
		ID int `json:"id"`
	} `json:"weather"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
}

// owmForecast mirrors the fields we need from /data/2.5/forecast.
type owmForecast struct {
	List []struct {
		Dt   int64   `json:"dt"`
		Pop  float64 `json:"pop"`
		Rain struct {
			ThreeHours float64 `json:"3h"`
		} `json:"rain"`
	} `json:"list"`
}

// Fetch implements Source.
func (s *OWMSource) Fetch(ctx context.Context) (Observation, error) {
	var cur owmCurrent
	if err := s.get(ctx, owmCurrentURL, &cur); err != nil {
		return Observation{}, err
	}

	var fc owmForecast
	if err := s.get(ctx, owmForecastURL, &fc); err != nil {
		return Observation{}, err
	}

	obs := Observation{
		IsRaining:         cur.Rain.OneHour > 0 || isRainCondition(cur.Weather),
		RainRateMmPerHour: cur.Rain.OneHour,
	}
	if obs.IsRaining && obs.RainRateMmPerHour == 0 {
		// Condition codes say rain but no rate reported; assume drizzle.
		obs.RainRateMmPerHour = 0.5
	}

	now := s.now().In(s.location)
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, s.location)

	for _, block := range fc.List {
		start := time.Unix(block.Dt, 0).In(s.location)
		end := start.Add(owmBlockDuration)

		// Skip blocks entirely outside the remainder of today.
		if !end.After(now) || start.After(endOfDay) {
			continue
		}

		if block.Pop > s.rainThreshold {
			obs.WillRain = true
		}

		// Prorate the block by how much of it overlaps [now, endOfDay].
		overlapStart := start
		if overlapStart.Before(now) {
			overlapStart = now
		}
		overlapEnd := end
		if overlapEnd.After(endOfDay) {
			overlapEnd = endOfDay
		}
		fraction := overlapEnd.Sub(overlapStart).Hours() / owmBlockDuration.Hours()
		obs.ForecastMmRemaining += block.Rain.ThreeHours * fraction
	}

	return obs, nil
}

// get performs an authenticated GET and decodes the JSON response.
func (s *OWMSource) get(ctx context.Context, baseURL string, out any) error {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", s.lat))
	q.Set("lon", fmt.Sprintf("%.4f", s.lon))
	q.Set("appid", s.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: HTTP %d from %s", ErrSourceUnavailable, resp.StatusCode, baseURL)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return nil
}

// isRainCondition reports whether any OpenWeatherMap condition code
// indicates precipitation (2xx thunderstorm, 3xx drizzle, 5xx rain).
func isRainCondition(conditions []struct {
	ID int `json:"id"`
}) bool {
	for _, c := range conditions {
		if (c.ID >= 200 && c.ID < 400) || (c.ID >= 500 && c.ID < 600) {
			return true
		}
	}
	return false
}
