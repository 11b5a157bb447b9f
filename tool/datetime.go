package tool

import (
	"context"
	"fmt"
	"strconv"
	"time"
	_ "time/tzdata" // timezone lookups must not depend on the host zoneinfo

	"github.com/hupe1980/agentlab/internal/util"
	"github.com/hupe1980/agentlab/logging"
)

// DateTimeToolName is the registered name of the built-in datetime tool.
const DateTimeToolName = "get_current_datetime"

// Supported datetime output formats.
const (
	FormatISO       = "iso"
	FormatHuman     = "human"
	FormatTimestamp = "timestamp"
)

const humanLayout = "Monday, January 02, 2006 at 03:04:05 PM MST"

// DateTimeInput are the arguments of get_current_datetime.
type DateTimeInput struct {
	Format   string `json:"format,omitempty" jsonschema:"output format: iso (default), human or timestamp"`
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA timezone name such as UTC or Europe/Berlin (default UTC)"`
}

// DateTimeOutput is the result of get_current_datetime.
type DateTimeOutput struct {
	Success  bool   `json:"success"`
	Datetime string `json:"datetime,omitempty"`
	Format   string `json:"format"`
	Timezone string `json:"timezone"`
	Error    string `json:"error,omitempty"`
}

// DateTimeOptions configures the datetime tool.
type DateTimeOptions struct {
	Now    func() time.Time
	Logger logging.Logger
}

// NewDateTimeTool returns the get_current_datetime tool. An unknown timezone is
// reported in the result (success=false) rather than as an error so the model
// can correct itself.
func NewDateTimeTool(optFns ...func(o *DateTimeOptions)) (*FunctionTool[DateTimeInput, DateTimeOutput], error) {
	opts := DateTimeOptions{
		Now:    time.Now,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	input, err := util.SchemaFor[DateTimeInput]()
	if err != nil {
		return nil, err
	}
	if p, ok := input.Properties["format"]; ok {
		p.Enum = []any{FormatISO, FormatHuman, FormatTimestamp}
	}

	return NewFunctionTool(
		DateTimeToolName,
		"Get the current date and time in a given timezone and format. Use this whenever the user asks about the current date, time or day of week.",
		func(_ context.Context, in DateTimeInput) (DateTimeOutput, error) {
			return currentDateTime(opts.Now(), in), nil
		},
		func(o *FunctionOptions) {
			o.InputSchema = input
			o.Logger = opts.Logger
		},
	)
}

func currentDateTime(now time.Time, in DateTimeInput) DateTimeOutput {
	format := in.Format
	if format == "" {
		format = FormatISO
	}
	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}

	out := DateTimeOutput{Format: format, Timezone: tz}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		out.Error = fmt.Sprintf("Invalid timezone '%s': %v", tz, err)
		return out
	}

	t := now.In(loc)
	switch format {
	case FormatHuman:
		out.Datetime = t.Format(humanLayout)
	case FormatTimestamp:
		out.Datetime = strconv.FormatInt(t.Unix(), 10)
	default:
		out.Datetime = t.Format(time.RFC3339)
	}
	out.Success = true

	return out
}
