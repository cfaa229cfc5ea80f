package solve

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/meenmo/ttdlib/calendar"
	"github.com/meenmo/ttdlib/survival"
	"github.com/meenmo/ttdlib/utils"
)

// Input defines the JSON input schema for a single curve inversion.
//
// The curve is anchored at anchor and given either as a flat hazard rate or
// as tenor -> piecewise hazard quotes. Target is the conditional survival
// probability S(start, t) to solve for.
type Input struct {
	Anchor   string             `json:"anchor"` // "2025-01-01"
	Hazard   float64            `json:"hazard"`
	Quotes   map[string]float64 `json:"quotes"` // {"1Y": 0.01, "5Y": 0.015}
	Calendar string             `json:"calendar"`

	Start  string  `json:"start"` // defaults to anchor
	End    string  `json:"end"`
	Target float64 `json:"target"`
}

// settlementLag is the business-day lag from the adjusted default date to cash settlement.
const settlementLag = 3

type Output struct {
	Days             float64 `json:"days,omitempty"`
	DefaultDate      string  `json:"default_date,omitempty"`
	AdjustedDate     string  `json:"adjusted_date,omitempty"`   // modified following
	SettlementDate   string  `json:"settlement_date,omitempty"` // adjusted date + 3 business days
	InWindow         bool    `json:"in_window"`
	WindowSurvival   float64 `json:"window_survival,omitempty"`
	WindowDefaultPct float64 `json:"window_default_pct,omitempty"`
	Error            string  `json:"error,omitempty"`
}

func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inputPath := fs.String("input", "", "JSON input path (optional; if set, ignores stdin)")
	help := fs.Bool("h", false, "Show help")
	fs.BoolVar(help, "help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		usage(stderr)
		return 0
	}

	path := strings.TrimSpace(*inputPath)
	if path == "" {
		if f, ok := stdin.(*os.File); ok {
			if stat, err := f.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) != 0 {
				usage(stderr)
				return 2
			}
		}
	}

	inputBytes, err := readInput(stdin, path)
	if err != nil {
		return writeError(stdout, fmt.Sprintf("failed to read input: %v", err))
	}

	var input Input
	if err := json.Unmarshal(inputBytes, &input); err != nil {
		return writeError(stdout, fmt.Sprintf("failed to parse JSON input: %v", err))
	}

	output, err := solve(input)
	if err != nil {
		return writeError(stdout, err.Error())
	}

	outputBytes, _ := json.Marshal(output)
	fmt.Fprintln(stdout, string(outputBytes))
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  ttdsim solve < input.json")
	fmt.Fprintln(w, "  ttdsim solve -input /path/to/input.json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Read JSON input, find the date where conditional survival hits target, output JSON to stdout.")
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	return io.ReadAll(stdin)
}

func writeError(stdout io.Writer, msg string) int {
	outputBytes, _ := json.Marshal(Output{Error: msg})
	fmt.Fprintln(stdout, string(outputBytes))
	return 1
}

func solve(input Input) (*Output, error) {
	anchor, err := utils.ParseDate(input.Anchor)
	if err != nil {
		return nil, fmt.Errorf("invalid anchor: %v", err)
	}
	start := anchor
	if strings.TrimSpace(input.Start) != "" {
		if start, err = utils.ParseDate(input.Start); err != nil {
			return nil, fmt.Errorf("invalid start: %v", err)
		}
	}
	end, err := utils.ParseDate(input.End)
	if err != nil {
		return nil, fmt.Errorf("invalid end: %v", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end must be after start")
	}
	if !(input.Target > 0 && input.Target <= 1) {
		return nil, fmt.Errorf("target must be in (0, 1], got %v", input.Target)
	}

	cal := calendar.Weekends
	if s := strings.TrimSpace(input.Calendar); s != "" {
		cal = calendar.CalendarID(strings.ToUpper(s))
	}
	var curve *survival.HazardCurve
	if len(input.Quotes) > 0 {
		curve, err = survival.BuildCurve(anchor, input.Quotes, cal)
	} else {
		curve, err = survival.FlatHazard(anchor, input.Hazard)
	}
	if err != nil {
		return nil, err
	}

	days := survival.NewSolver(curve, start, end).Solve(input.Target)
	out := &Output{
		WindowSurvival:   curve.Interpolate(start, end),
		WindowDefaultPct: 100 * (1 - curve.Interpolate(start, end)),
	}
	if math.IsInf(days, 1) {
		return out, nil
	}
	date := utils.TruncateDay(start, days)
	out.Days = utils.RoundTo(days, 6)
	out.DefaultDate = utils.FormatDate(date)
	adjusted := calendar.Adjust(cal, date)
	out.AdjustedDate = utils.FormatDate(adjusted)
	out.SettlementDate = utils.FormatDate(calendar.AddBusinessDays(cal, adjusted, settlementLag))
	out.InWindow = date.Before(end)
	return out, nil
}
