package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/ghostagent/ghost/internal/domain/service"
	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

// SystemUtilityTool answers ambient questions: time, weather, node
// health, approximate location. The dispatcher exempts it from the
// redundancy guard since its answers legitimately change between calls.
type SystemUtilityTool struct {
	egress   *Egress
	upstream service.UpstreamClient
	runner   ScriptRunner // nil = sandbox health unknown
	started  time.Time
	logger   *zap.Logger
}

func NewSystemUtilityTool(egress *Egress, upstream service.UpstreamClient, runner ScriptRunner, logger *zap.Logger) *SystemUtilityTool {
	return &SystemUtilityTool{
		egress:   egress,
		upstream: upstream,
		runner:   runner,
		started:  time.Now(),
		logger:   logger.With(zap.String("tool", "system_utility")),
	}
}

func (t *SystemUtilityTool) Name() string          { return "system_utility" }
func (t *SystemUtilityTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *SystemUtilityTool) Description() string {
	return "System utilities: check current time, weather, runtime health or approximate location."
}

func (t *SystemUtilityTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"check_time", "check_weather", "check_health", "check_location"},
			},
			"location": map[string]interface{}{
				"type":        "string",
				"description": "City name for check_weather. Omit to use the detected location.",
			},
		},
		"required": []string{"action"},
	}
}

func (t *SystemUtilityTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	switch strArg(args, "action") {
	case "check_time":
		return t.checkTime()
	case "check_weather":
		return t.checkWeather(ctx, strArg(args, "location"))
	case "check_health":
		return t.checkHealth()
	case "check_location":
		return t.checkLocation(ctx)
	default:
		return fail("Error: unknown action '%s'", strArg(args, "action"))
	}
}

func (t *SystemUtilityTool) checkTime() (*domaintool.Result, error) {
	now := time.Now()
	return ok(fmt.Sprintf("Local time: %s\nUTC: %s",
		now.Format("Monday, 2006-01-02 15:04:05 MST"),
		now.UTC().Format("2006-01-02 15:04:05")))
}

// open-meteo geocoding + forecast, wttr.in one-liner as fallback
func (t *SystemUtilityTool) checkWeather(ctx context.Context, location string) (*domaintool.Result, error) {
	if location == "" {
		location = t.detectCity(ctx)
	}
	if location == "" {
		return fail("Error: no location given and none could be detected")
	}

	report, err := t.openMeteo(ctx, location)
	if err == nil {
		return ok(report)
	}
	t.logger.Warn("Open-Meteo failed, falling back to wttr.in", zap.Error(err))

	fallback, ferr := t.wttr(ctx, location)
	if ferr != nil {
		return fail("Error: weather services unreachable (%v; %v)", err, ferr)
	}
	return ok(fallback)
}

func (t *SystemUtilityTool) openMeteo(ctx context.Context, location string) (string, error) {
	geoURL := "https://geocoding-api.open-meteo.com/v1/search?count=1&name=" + url.QueryEscape(location)
	var geo struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := t.getJSON(ctx, geoURL, &geo); err != nil {
		return "", err
	}
	if len(geo.Results) == 0 {
		return "", fmt.Errorf("location '%s' not found", location)
	}
	place := geo.Results[0]

	wxURL := fmt.Sprintf(
		"https://api.open-meteo.com/v1/forecast?latitude=%.4f&longitude=%.4f&current=temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,weather_code",
		place.Latitude, place.Longitude)
	var wx struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			FeelsLike   float64 `json:"apparent_temperature"`
			Humidity    float64 `json:"relative_humidity_2m"`
			WindSpeed   float64 `json:"wind_speed_10m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
	}
	if err := t.getJSON(ctx, wxURL, &wx); err != nil {
		return "", err
	}

	c := wx.Current
	return fmt.Sprintf("Weather in %s, %s: %s, %.1f°C (feels like %.1f°C), humidity %.0f%%, wind %.1f km/h",
		place.Name, place.Country, weatherCodeText(c.WeatherCode),
		c.Temperature, c.FeelsLike, c.Humidity, c.WindSpeed), nil
}

func (t *SystemUtilityTool) wttr(ctx context.Context, location string) (string, error) {
	body, err := t.getText(ctx, "https://wttr.in/"+url.PathEscape(location)+"?format=3")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(body), nil
}

func (t *SystemUtilityTool) checkHealth() (*domaintool.Result, error) {
	pools := []service.Pool{
		service.PoolMain, service.PoolSwarm, service.PoolWorker,
		service.PoolVision, service.PoolCoding, service.PoolEmbeddings,
	}
	var lines []string
	lines = append(lines, fmt.Sprintf("Uptime: %s", time.Since(t.started).Round(time.Second)))
	lines = append(lines, fmt.Sprintf("Goroutines: %d", runtime.NumGoroutine()))
	for _, p := range pools {
		lines = append(lines, fmt.Sprintf("Pool %s: %d node(s)", p, t.upstream.PoolSize(p)))
	}
	if t.runner != nil {
		lines = append(lines, fmt.Sprintf("Sandbox backend: %s", t.runner.Backend()))
	}
	if t.egress.Anonymous() {
		lines = append(lines, "Egress: anonymous (Tor)")
	} else {
		lines = append(lines, "Egress: direct")
	}
	return ok(strings.Join(lines, "\n"))
}

func (t *SystemUtilityTool) checkLocation(ctx context.Context) (*domaintool.Result, error) {
	var loc struct {
		Status  string `json:"status"`
		Country string `json:"country"`
		Region  string `json:"regionName"`
		City    string `json:"city"`
		Query   string `json:"query"`
	}
	if err := t.getJSON(ctx, "http://ip-api.com/json", &loc); err != nil {
		return fail("Error: location lookup failed: %v", err)
	}
	if loc.Status != "success" {
		return fail("Error: location service returned status '%s'", loc.Status)
	}
	note := ""
	if t.egress.Anonymous() {
		note = "\n(Note: egress runs through Tor, this is the exit node location.)"
	}
	return ok(fmt.Sprintf("Approximate location: %s, %s, %s (IP %s)%s",
		loc.City, loc.Region, loc.Country, loc.Query, note))
}

// detectCity resolves the egress IP to a city for implicit weather calls.
func (t *SystemUtilityTool) detectCity(ctx context.Context) string {
	var loc struct {
		City string `json:"city"`
	}
	if err := t.getJSON(ctx, "http://ip-api.com/json", &loc); err != nil {
		return ""
	}
	return loc.City
}

func (t *SystemUtilityTool) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	body, err := t.getText(ctx, rawURL)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), out)
}

func (t *SystemUtilityTool) getText(ctx context.Context, rawURL string) (string, error) {
	client, err := t.egress.AnonClient()
	if err != nil {
		return "", err
	}
	reqCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, "GET", rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUA)
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// weatherCodeText maps WMO weather codes to prose.
func weatherCodeText(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
