package runcmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/meenmo/ttdlib/calendar"
	"github.com/meenmo/ttdlib/config"
	"github.com/meenmo/ttdlib/copula"
	"github.com/meenmo/ttdlib/logging"
	"github.com/meenmo/ttdlib/observability"
	"github.com/meenmo/ttdlib/simulate"
	"github.com/meenmo/ttdlib/survival"
	"github.com/meenmo/ttdlib/ttd"
	"github.com/meenmo/ttdlib/utils"
)

// Output is the JSON written to stdout. NameLabels echoes the configured name
// labels in basket order.
type Output struct {
	*simulate.Summary
	NameLabels []string `json:"name_labels,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func Run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Run config path (YAML, JSON or TOML)")
	metricsPath := fs.String("metrics", "", "Write Prometheus text metrics to this path after the run")
	help := fs.Bool("h", false, "Show help")
	fs.BoolVar(help, "help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		usage(stderr)
		return 0
	}
	if strings.TrimSpace(*configPath) == "" {
		usage(stderr)
		return 2
	}

	rc, err := config.Load(*configPath)
	if err != nil {
		return writeError(stdout, err.Error())
	}
	if err := rc.Validate(); err != nil {
		return writeError(stdout, fmt.Sprintf("invalid config: %v", err))
	}

	logger, err := logging.New(rc.Logging.Level, rc.Logging.Format)
	if err != nil {
		return writeError(stdout, err.Error())
	}
	defer func() { _ = logger.Sync() }()

	job, err := buildJob(rc)
	if err != nil {
		return writeError(stdout, err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("ttdsim")
	summary, err := simulate.NewRunner(logger, metrics).Run(ctx, job)
	if err != nil {
		return writeError(stdout, err.Error())
	}

	if *metricsPath != "" {
		if err := writeMetrics(*metricsPath, metrics); err != nil {
			return writeError(stdout, err.Error())
		}
	}

	labels := make([]string, len(rc.Names))
	for i, n := range rc.Names {
		labels[i] = n.Name
	}
	outputBytes, _ := json.Marshal(Output{Summary: summary, NameLabels: labels})
	fmt.Fprintln(stdout, string(outputBytes))
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  ttdsim run -config basket.yaml [-metrics metrics.prom]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Simulate the configured basket and write a JSON summary to stdout.")
	fmt.Fprintln(w, "Any config key can be overridden with TTDSIM_<SECTION>_<KEY>, e.g. TTDSIM_SAMPLING_SEED.")
}

func writeError(stdout io.Writer, msg string) int {
	outputBytes, _ := json.Marshal(Output{Error: msg})
	fmt.Fprintln(stdout, string(outputBytes))
	return 1
}

func writeMetrics(path string, metrics *observability.Metrics) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer f.Close()
	return metrics.WriteText(f)
}

func buildJob(rc *config.RunConfig) (simulate.Job, error) {
	start, err := utils.ParseDate(rc.Window.Start)
	if err != nil {
		return simulate.Job{}, fmt.Errorf("invalid window.start: %v", err)
	}
	end, err := utils.ParseDate(rc.Window.End)
	if err != nil {
		return simulate.Job{}, fmt.Errorf("invalid window.end: %v", err)
	}
	var middle time.Time
	if rc.Sampling.TwoStage {
		if middle, err = utils.ParseDate(rc.Window.Middle); err != nil {
			return simulate.Job{}, fmt.Errorf("invalid window.middle: %v", err)
		}
	}

	curves, err := buildCurves(start, rc.Names)
	if err != nil {
		return simulate.Job{}, err
	}

	typ, err := copula.ParseType(rc.Copula.Type)
	if err != nil {
		return simulate.Job{}, err
	}

	job := simulate.Job{
		Curves: curves,
		Copula: copula.Spec{
			Type:             typ,
			Size:             len(curves),
			Correlation:      rc.Copula.Correlation,
			Loadings:         rc.Copula.Loadings,
			Rho:              rc.Copula.Rho,
			DegreesOfFreedom: rc.Copula.DegreesOfFreedom,
			Tau:              rc.Copula.Tau,
		},
		Start:             start,
		Middle:            middle,
		End:               end,
		Seed:              rc.Sampling.Seed,
		Paths:             rc.Sampling.Paths,
		Workers:           rc.Sampling.Workers,
		Antithetic:        rc.Sampling.Antithetic,
		SortDefaults:      rc.Sampling.SortDefaults,
		PilotPaths:        rc.Sampling.PilotPaths,
		TwoStage:          rc.Sampling.TwoStage,
		ContinuationPaths: rc.Sampling.ContinuationPaths,
	}

	explicit := false
	for _, s := range rc.Strata {
		job.Strata = append(job.Strata, ttd.Stratum{Min: s.Min, Max: s.Max})
		job.Allocation = append(job.Allocation, s.Paths)
		if s.Paths > 0 {
			explicit = true
		}
	}
	if !explicit {
		job.Allocation = nil
	}
	return job, nil
}

// buildCurves anchors every curve at the window start. A name with quotes
// gets a piecewise hazard curve on its calendar; otherwise a flat hazard.
func buildCurves(anchor time.Time, names []config.NameConfig) ([]survival.Curve, error) {
	curves := make([]survival.Curve, len(names))
	for i, n := range names {
		var (
			c   *survival.HazardCurve
			err error
		)
		if len(n.Quotes) > 0 {
			cal := calendar.Weekends
			if s := strings.TrimSpace(n.Calendar); s != "" {
				cal = calendar.CalendarID(strings.ToUpper(s))
			}
			c, err = survival.BuildCurve(anchor, n.Quotes, cal)
		} else {
			c, err = survival.FlatHazard(anchor, n.Hazard)
		}
		if err != nil {
			return nil, fmt.Errorf("names[%d] (%s): %w", i, n.Name, err)
		}
		curves[i] = c
	}
	return curves, nil
}
