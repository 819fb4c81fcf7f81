package config

import (
	"aplica-pipeline/internal/components/configutil"
	"aplica-pipeline/internal/components/telemetry"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
)

// DefaultFile is the config file looked up (recursively from the cwd) when no
// explicit path is given.
const DefaultFile = "aplica.json5"

// ApiKeyEnv is consulted when the config does not carry an api key.
const ApiKeyEnv = "SCORECARD_API_KEY"

type Scorecard struct {
	BaseUrl             string  `json:"base_url"`
	PerPage             int     `json:"per_page"`
	RequestDelaySeconds float64 `json:"request_delay_seconds"`
	RetryDelaySeconds   float64 `json:"retry_delay_seconds"`
	BackoffBaseSeconds  float64 `json:"backoff_base_seconds"`
	TimeoutSeconds      float64 `json:"timeout_seconds"`
	MaxRetries          int     `json:"max_retries"`
	PageCeiling         int     `json:"page_ceiling"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (s Scorecard) RequestDelay() time.Duration { return seconds(s.RequestDelaySeconds) }
func (s Scorecard) RetryDelay() time.Duration   { return seconds(s.RetryDelaySeconds) }
func (s Scorecard) BackoffBase() time.Duration  { return seconds(s.BackoffBaseSeconds) }
func (s Scorecard) Timeout() time.Duration      { return seconds(s.TimeoutSeconds) }

type Ipeds struct {
	BaseUrl             string  `json:"base_url"`
	Year                string  `json:"year"`
	RequestDelaySeconds float64 `json:"request_delay_seconds"`
}

func (i Ipeds) RequestDelay() time.Duration { return seconds(i.RequestDelaySeconds) }

type Paths struct {
	RawDir       string `json:"raw_dir"`
	ProcessedDir string `json:"processed_dir"`
	OutputDir    string `json:"output_dir"`
}

func (p Paths) ScorecardCSV() string {
	return filepath.Join(p.RawDir, "scorecard_data.csv")
}

func (p Paths) IpedsRawCSV(code string) string {
	return filepath.Join(p.RawDir, fmt.Sprintf("ipeds_%s.csv", strings.ToLower(code)))
}

func (p Paths) IpedsMergedCSV() string {
	return filepath.Join(p.ProcessedDir, "ipeds_merged.csv")
}

func (p Paths) Database(version string) string {
	return filepath.Join(p.OutputDir, fmt.Sprintf("colleges_v%s.db", version))
}

// Store configures the relational store. When Url is set the database is
// written to a remote libsql server instead of a local file.
type Store struct {
	Version   string `json:"version"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

type Config struct {
	ApiKey    string           `json:"api_key"`
	Scorecard Scorecard        `json:"scorecard"`
	Ipeds     Ipeds            `json:"ipeds"`
	Paths     Paths            `json:"paths"`
	Store     Store            `json:"store"`
	Telemetry telemetry.Config `json:"telemetry"`
}

func Default() Config {
	return Config{
		Scorecard: Scorecard{
			BaseUrl:             "https://api.data.gov/ed/collegescorecard/v1/schools",
			PerPage:             100,
			RequestDelaySeconds: 3,
			RetryDelaySeconds:   2,
			BackoffBaseSeconds:  10,
			TimeoutSeconds:      60,
			MaxRetries:          3,
			PageCeiling:         1000,
		},
		Ipeds: Ipeds{
			BaseUrl:             "https://nces.ed.gov/ipeds/datacenter/data",
			Year:                "2023",
			RequestDelaySeconds: 1,
		},
		Paths: Paths{
			RawDir:       filepath.Join("pipeline", "raw"),
			ProcessedDir: filepath.Join("pipeline", "processed"),
			OutputDir:    filepath.Join("pipeline", "output"),
		},
		Store: Store{
			Version: "2024_11",
		},
	}
}

// Load reads the config at `path` (and its .local override), a bare file name
// is searched for from the cwd upwards. A missing file is not an error, every
// field that is left unset falls back to Default().
func Load(path string) (Config, error) {
	var (
		cfg Config
		err error
	)
	if filepath.Base(path) == path {
		cfg, err = configutil.ReadRecursively[Config](path)
	} else {
		cfg, err = configutil.ReadConfig[Config](path)
	}
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	err = mergo.Merge(&cfg, Default())
	if err != nil {
		return Config{}, fmt.Errorf("apply config defaults: %w", err)
	}

	if cfg.ApiKey == "" {
		cfg.ApiKey = os.Getenv(ApiKeyEnv)
	}
	return cfg, nil
}

// RequireApiKey returns an error when no api key was configured.
func (c Config) RequireApiKey() error {
	if c.ApiKey == "" {
		return fmt.Errorf("no api key: set \"api_key\" in %s or the %s environment variable", DefaultFile, ApiKeyEnv)
	}
	return nil
}
