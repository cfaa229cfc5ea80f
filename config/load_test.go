package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "run-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTemp(t, `
window:
  start: "2025-01-02"
  end: "2030-01-02"
copula:
  type: gaussian
  correlation:
    - [1.0, 0.3]
    - [0.3, 1.0]
sampling:
  seed: 42
  paths: 5000
  antithetic: true
names:
  - name: ACME
    hazard: 0.02
  - name: GLOBEX
    quotes:
      1Y: 0.01
      5Y: 0.03
strata:
  - {min: 0, max: 0}
  - {min: 1, max: 2, paths: 400}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gaussian", cfg.Copula.Type)
	require.Len(t, cfg.Copula.Correlation, 2)
	assert.InDelta(t, 0.3, cfg.Copula.Correlation[0][1], 1e-12)
	assert.Equal(t, uint64(42), cfg.Sampling.Seed)
	assert.True(t, cfg.Sampling.Antithetic)
	assert.True(t, cfg.Sampling.SortDefaults, "default")
	assert.Equal(t, 1, cfg.Sampling.Workers, "default")
	require.Len(t, cfg.Names, 2)
	assert.Len(t, cfg.Names[1].Quotes, 2)
	require.Len(t, cfg.Strata, 2)
	assert.Equal(t, 400, cfg.Strata[1].Paths)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	base := func() RunConfig {
		return RunConfig{
			Window:   WindowConfig{Start: "2025-01-02", End: "2030-01-02"},
			Sampling: SamplingConfig{Paths: 10, Workers: 1},
			Names:    []NameConfig{{Name: "A", Hazard: 0.01}},
		}
	}

	cases := map[string]func(c *RunConfig){
		"bad start":        func(c *RunConfig) { c.Window.Start = "x" },
		"inverted window":  func(c *RunConfig) { c.Window.End = "2024-01-01" },
		"no names":         func(c *RunConfig) { c.Names = nil },
		"negative hazard":  func(c *RunConfig) { c.Names[0].Hazard = -1 },
		"no curve input":   func(c *RunConfig) { c.Names[0].Hazard = 0 },
		"zero paths":       func(c *RunConfig) { c.Sampling.Paths = 0 },
		"zero workers":     func(c *RunConfig) { c.Sampling.Workers = 0 },
		"middle outside":   func(c *RunConfig) { c.Sampling.TwoStage = true; c.Window.Middle = "2031-01-01" },
		"parallel strata":  func(c *RunConfig) { c.Sampling.Workers = 2; c.Strata = []StratumConfig{{Min: 0, Max: 1}} },
		"no continuations": func(c *RunConfig) { c.Sampling.TwoStage = true; c.Window.Middle = "2027-01-01" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	ok := base()
	assert.NoError(t, ok.Validate())
}

func TestSetConfig(t *testing.T) {
	prev := GetConfig()
	t.Cleanup(func() { SetConfig(prev) })

	c := DefaultConfig
	c.MaxSolverIterations = 7
	SetConfig(c)
	assert.Equal(t, 7, GetConfig().MaxSolverIterations)
}
