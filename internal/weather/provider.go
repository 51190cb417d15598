package weather

import (
	"fmt"
	"time"

	"github.com/nerrad567/aqua-core/internal/infrastructure/config"
)

// NewSource builds the provider selected by configuration. The choice is
// made once at startup; callers hold the result as an opaque Source and
// never branch on provider identity again.
func NewSource(cfg config.WeatherConfig, site config.SiteConfig, loc *time.Location) (Source, error) {
	switch cfg.Provider {
	case "", "none":
		return NewNoneSource(), nil
	case "openweathermap":
		return NewOWMSource(cfg.APIKey, site.Location.Latitude, site.Location.Longitude,
			cfg.RainProbability, loc), nil
	case "pirateweather":
		return NewPirateSource(cfg.APIKey, site.Location.Latitude, site.Location.Longitude,
			cfg.RainProbability, loc), nil
	default:
		return nil, fmt.Errorf("weather: unknown provider %q", cfg.Provider)
	}
}
