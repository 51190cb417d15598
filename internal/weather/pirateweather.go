package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// pirateBaseURL is the Pirate Weather forecast endpoint. The API key is
// part of the path.
const pirateBaseURL = "https://api.pirateweather.net/forecast"

// PirateSource fetches observations from Pirate Weather.
//
// Pirate Weather reports precipitation as an hourly intensity (mm/h with
// units=si), so the rest-of-day forecast is the sum of hourly intensities
// for the remaining hours of the local day, the first hour prorated.
type PirateSource struct {
	apiKey        string
	lat, lon      float64
	rainThreshold float64
	location      *time.Location
	httpClient    *http.Client
	now           func() time.Time
}

// NewPirateSource creates a Pirate Weather source.
func NewPirateSource(apiKey string, lat, lon, rainThreshold float64, loc *time.Location) *PirateSource {
	return &PirateSource{
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
func (s *PirateSource) Name() string { return "pirateweather" }

// pirateResponse mirrors the fields we need from the forecast response.
type pirateResponse struct {
	Currently struct {
		PrecipIntensity   float64 `json:"precipIntensity"`
		PrecipProbability float64 `json:"precipProbability"`
	} `json:"currently"`
	Hourly struct {
		Data []struct {
			Time              int64   `json:"time"`
			PrecipIntensity   float64 `json:"precipIntensity"`
			PrecipProbability float64 `json:"precipProbability"`
		} `json:"data"`
	} `json:"hourly"`
}

// Fetch implements Source.
func (s *PirateSource) Fetch(ctx context.Context) (Observation, error) {
	reqURL := fmt.Sprintf("%s/%s/%.4f,%.4f?units=si&exclude=minutely,daily,alerts",
		pirateBaseURL, s.apiKey, s.lat, s.lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Observation{}, fmt.Errorf("%w: HTTP %d from pirateweather", ErrSourceUnavailable, resp.StatusCode)
	}

	var body pirateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Observation{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	obs := Observation{
		IsRaining:         body.Currently.PrecipIntensity > 0,
		RainRateMmPerHour: body.Currently.PrecipIntensity,
	}

	now := s.now().In(s.location)
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, s.location)

	for _, hour := range body.Hourly.Data {
		start := time.Unix(hour.Time, 0).In(s.location)
		end := start.Add(time.Hour)

		if !end.After(now) || start.After(endOfDay) {
			continue
		}

		if hour.PrecipProbability > s.rainThreshold {
			obs.WillRain = true
		}

		overlapStart := start
		if overlapStart.Before(now) {
			overlapStart = now
		}
		overlapEnd := end
		if overlapEnd.After(endOfDay) {
			overlapEnd = endOfDay
		}
		obs.ForecastMmRemaining += hour.PrecipIntensity * overlapEnd.Sub(overlapStart).Hours()
	}

	return obs, nil
}
