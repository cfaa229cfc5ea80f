package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RunConfig describes one simulation run of the ttdsim tool.
type RunConfig struct {
	Window   WindowConfig    `mapstructure:"window"`
	Copula   CopulaConfig    `mapstructure:"copula"`
	Sampling SamplingConfig  `mapstructure:"sampling"`
	Strata   []StratumConfig `mapstructure:"strata"`
	Names    []NameConfig    `mapstructure:"names"`
	Logging  LoggingConfig   `mapstructure:"logging"`
}

// WindowConfig holds the simulation window as YYYY-MM-DD strings.
// Middle is only used for two-stage sampling.
type WindowConfig struct {
	Start  string `mapstructure:"start"`
	Middle string `mapstructure:"middle"`
	End    string `mapstructure:"end"`
}

// CopulaConfig selects the dependence model.
type CopulaConfig struct {
	Type             string      `mapstructure:"type"`
	Correlation      [][]float64 `mapstructure:"correlation"`
	Loadings         []float64   `mapstructure:"loadings"`
	Rho              float64     `mapstructure:"rho"`
	DegreesOfFreedom int         `mapstructure:"degrees_of_freedom"`
	Tau              float64     `mapstructure:"tau"`
}

// SamplingConfig controls the path budget and variance reduction.
type SamplingConfig struct {
	Seed              uint64 `mapstructure:"seed"`
	Paths             int    `mapstructure:"paths"`
	Workers           int    `mapstructure:"workers"`
	Antithetic        bool   `mapstructure:"antithetic"`
	SortDefaults      bool   `mapstructure:"sort_defaults"`
	TwoStage          bool   `mapstructure:"two_stage"`
	ContinuationPaths int    `mapstructure:"continuation_paths"`
	PilotPaths        int    `mapstructure:"pilot_paths"`
}

// StratumConfig is a default-count bucket with an optional explicit path quota.
type StratumConfig struct {
	Min   int `mapstructure:"min"`
	Max   int `mapstructure:"max"`
	Paths int `mapstructure:"paths"`
}

// NameConfig describes one credit name's survival curve, either as a flat
// hazard rate or as tenor -> hazard quotes (e.g. "1Y": 0.01).
type NameConfig struct {
	Name     string             `mapstructure:"name"`
	Hazard   float64            `mapstructure:"hazard"`
	Quotes   map[string]float64 `mapstructure:"quotes"`
	Calendar string             `mapstructure:"calendar"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads a run configuration from file and TTDSIM_* environment variables.
func Load(path string) (*RunConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("TTDSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var rc RunConfig
	if err := v.Unmarshal(&rc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &rc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("copula.type", "gaussian")
	v.SetDefault("sampling.seed", 1)
	v.SetDefault("sampling.paths", 10000)
	v.SetDefault("sampling.workers", 1)
	v.SetDefault("sampling.antithetic", false)
	v.SetDefault("sampling.sort_defaults", true)
	v.SetDefault("sampling.continuation_paths", 1)
	v.SetDefault("sampling.pilot_paths", DefaultConfig.PilotPaths)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the fields that do not need the copula or curve packages.
func (c *RunConfig) Validate() error {
	start, err := time.Parse("2006-01-02", c.Window.Start)
	if err != nil {
		return fmt.Errorf("window.start: %w", err)
	}
	end, err := time.Parse("2006-01-02", c.Window.End)
	if err != nil {
		return fmt.Errorf("window.end: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("window.end must be after window.start")
	}
	if c.Sampling.TwoStage {
		middle, err := time.Parse("2006-01-02", c.Window.Middle)
		if err != nil {
			return fmt.Errorf("window.middle: %w", err)
		}
		if !middle.After(start) || !end.After(middle) {
			return fmt.Errorf("window.middle must lie strictly inside the window")
		}
		if c.Sampling.ContinuationPaths < 1 {
			return fmt.Errorf("sampling.continuation_paths must be at least 1")
		}
	}
	if len(c.Names) == 0 {
		return fmt.Errorf("names must contain at least one name")
	}
	for i, n := range c.Names {
		if n.Hazard < 0 {
			return fmt.Errorf("names[%d].hazard must be non-negative", i)
		}
		if n.Hazard == 0 && len(n.Quotes) == 0 {
			return fmt.Errorf("names[%d] needs a hazard or quotes", i)
		}
	}
	if c.Sampling.Paths < 1 {
		return fmt.Errorf("sampling.paths must be at least 1")
	}
	if c.Sampling.Workers < 1 {
		return fmt.Errorf("sampling.workers must be at least 1")
	}
	if len(c.Strata) > 0 && c.Sampling.Workers != 1 {
		return fmt.Errorf("stratified sampling runs on a single worker")
	}
	return nil
}
