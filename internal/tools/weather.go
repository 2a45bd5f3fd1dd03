package tools

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	AreaWeatherToolName = "get_area_weather"

	// DefaultWeatherBaseURL is the AMap weather endpoint.
	DefaultWeatherBaseURL = "https://restapi.amap.com/v3/weather/weatherInfo"

	DefaultAreaCodeFile = "area_code.csv"

	weatherRequestTimeout = 10 * time.Second
)

// ErrAreaNotFound is returned when an area name matches no row of the area code table.
var ErrAreaNotFound = errors.New("area not found")

// forecastFields lists the forecast fields included in the tool output, in output order.
var forecastFields = []struct {
	key   string
	label string
}{
	{"date", "Date"},
	{"week", "Day of week"},
	{"dayweather", "Day weather"},
	{"nightweather", "Night weather"},
	{"daytemp", "Day temperature"},
	{"nighttemp", "Night temperature"},
	{"daywind", "Day wind direction"},
	{"nightwind", "Night wind direction"},
	{"daypower", "Day wind power"},
	{"nightpower", "Night wind power"},
}

// Area is one row of the area code table.
type Area struct {
	Name     string
	AdCode   string
	CityCode string
}

// WeatherConfig holds the settings of the weather tool.
type WeatherConfig struct {
	// Fs is the filesystem the area code table is read from. Defaults to the OS filesystem.
	Fs           afero.Fs
	AreaCodeFile string

	// APIKey is the AMap web service key.
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Weather serves weather forecasts for areas listed in the area code table.
type Weather struct {
	fs           afero.Fs
	areaCodeFile string
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger

	loadOnce sync.Once
	areas    []Area
	loadErr  error
}

// NewWeather creates the weather tool.
func NewWeather(c WeatherConfig) *Weather {
	w := &Weather{
		fs:           c.Fs,
		areaCodeFile: c.AreaCodeFile,
		apiKey:       c.APIKey,
		baseURL:      c.BaseURL,
		httpClient:   c.HTTPClient,
		logger:       c.Logger,
	}
	if w.fs == nil {
		w.fs = afero.NewOsFs()
	}
	if w.areaCodeFile == "" {
		w.areaCodeFile = DefaultAreaCodeFile
	}
	if w.baseURL == "" {
		w.baseURL = DefaultWeatherBaseURL
	}
	if w.httpClient == nil {
		w.httpClient = &http.Client{Timeout: weatherRequestTimeout}
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w
}

// Tool describes the weather tool.
func (w *Weather) Tool() mcp.Tool {
	return mcp.NewTool(AreaWeatherToolName,
		mcp.WithDescription(
			"Get today's weather forecast for an area.\n"+
				"Output is one label:value line per field: date, day of week, day and night weather, "+
				"temperature, wind direction and wind power.",
		),
		mcp.WithString("area_name",
			mcp.Required(),
			mcp.Description("Name of a city or county, eg- Hangzhou"),
		),
	)
}

// Handle looks up the requested area and returns today's forecast.
// Lookup and upstream failures are reported as tool errors so the model can see them.
func (w *Weather) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("area_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	forecast, err := w.Forecast(ctx, name)
	if err != nil {
		if errors.Is(err, ErrAreaNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("area not found: %s", name)), nil
		}
		w.logger.Warn("failed to get weather", zap.String("area", name), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("failed to get weather for %s: %v", name, err)), nil
	}
	return mcp.NewToolResultText(forecast), nil
}

// FindArea returns the first area whose name contains the given name or is contained in it.
func (w *Weather) FindArea(name string) (Area, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Area{}, fmt.Errorf("%w: empty area name", ErrAreaNotFound)
	}

	w.loadOnce.Do(func() {
		w.areas, w.loadErr = w.loadAreas()
	})
	if w.loadErr != nil {
		return Area{}, w.loadErr
	}

	for _, a := range w.areas {
		if strings.Contains(name, a.Name) || strings.Contains(a.Name, name) {
			return a, nil
		}
	}
	return Area{}, fmt.Errorf("%w: %s", ErrAreaNotFound, name)
}

// loadAreas reads the area code table: rows of area name, adcode and optionally citycode.
func (w *Weather) loadAreas() ([]Area, error) {
	f, err := w.fs.Open(w.areaCodeFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open area code table %s: %w", w.areaCodeFile, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var areas []Area
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read area code table %s: %w", w.areaCodeFile, err)
		}
		if len(record) < 2 {
			continue
		}
		a := Area{Name: strings.TrimSpace(record[0]), AdCode: strings.TrimSpace(record[1])}
		if len(record) > 2 {
			a.CityCode = strings.TrimSpace(record[2])
		}
		if a.Name == "" || a.AdCode == "" {
			continue
		}
		areas = append(areas, a)
	}
	return areas, nil
}

type amapWeatherResponse struct {
	Status    string `json:"status"`
	Info      string `json:"info"`
	Forecasts []struct {
		City  string              `json:"city"`
		Casts []map[string]string `json:"casts"`
	} `json:"forecasts"`
}

// Forecast returns today's forecast for the named area as label:value lines.
func (w *Weather) Forecast(ctx context.Context, name string) (string, error) {
	area, err := w.FindArea(name)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("key", w.apiKey)
	q.Set("city", area.AdCode)
	q.Set("extensions", "all")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create weather request: %w", err)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather service returned status %d", resp.StatusCode)
	}

	var payload amapWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode weather response: %w", err)
	}
	if payload.Status != "1" {
		return "", fmt.Errorf("weather service error: %s", payload.Info)
	}
	if len(payload.Forecasts) == 0 || len(payload.Forecasts[0].Casts) == 0 {
		return "", fmt.Errorf("weather service returned no forecast for %s", area.Name)
	}

	return formatForecast(payload.Forecasts[0].Casts[0]), nil
}

func formatForecast(cast map[string]string) string {
	lines := make([]string, 0, len(forecastFields))
	for _, f := range forecastFields {
		if v, ok := cast[f.key]; ok {
			lines = append(lines, f.label+":"+v)
		}
	}
	return strings.Join(lines, "\n")
}
