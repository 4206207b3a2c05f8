package trajplot

import (
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
	"gonum.org/v1/plot/vg"
)

const Usage = "[OPTIONS] <data_filepath> [<anything>]"

// ErrUsage is returned when the command line does not have exactly one or two
// positional arguments.
var ErrUsage = errors.New("only 1 or 2 arguments allowed")

type Options struct {
	Output      string         `short:"o" long:"output" description:"Save the figure to this file instead of opening a window. The format comes from the extension: png, svg, pdf, eps, jpg, tif or tex"`
	TimeColumn  string         `long:"time-column" default:"time" description:"Name of the column plotted on the x axis"`
	Relaxed     bool           `long:"relaxed" description:"Split fields on runs of spaces or tabs as well as commas, without CSV quoting"`
	Width       float64        `long:"width" default:"8" description:"Figure width in inches"`
	PanelHeight float64        `long:"panel-height" default:"2.5" description:"Height of each panel in inches"`
	Title       string         `long:"title" description:"Window title, defaults to the data file path"`
	Host        string         `long:"host" default:"127.0.0.1" description:"Address the viewer listens on"`
	Port        uint16         `short:"p" long:"port" default:"0" description:"Port the viewer listens on, 0 picks a free one"`
	NoBrowser   bool           `long:"no-browser" description:"Do not open the viewer in a browser, only print its URL"`
	CloseGrace  time.Duration  `long:"close-grace" default:"2s" description:"How long the viewer waits for a closed window to come back (page reload) before exiting"`
	Verbose     []bool         `short:"v" long:"verbose" description:"Log more, repeat for debug output"`
	Config      flags.Filename `long:"config" no-ini:"true" description:"INI file with default values for these options"`
}

// PlotConfig is everything a run needs, derived once from the command line.
type PlotConfig struct {
	DataFilepath string

	// False when a second positional argument was given, whatever its value.
	IncludeZero bool

	TimeColumn  string
	Relaxed     bool
	Output      string
	Width       vg.Length
	PanelHeight vg.Length
	Title       string

	Host        string
	Port        uint16
	OpenBrowser bool
	CloseGrace  time.Duration

	Verbosity int
}

func newParser(opts *Options) *flags.Parser {
	// Unknown dash words stay positional: the second argument only switches
	// the zero line off, whatever it says.
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash|flags.IgnoreUnknown)
	parser.Name = "plot_trajectory"
	parser.Usage = Usage
	return parser
}

// ParseOptions parses the process arguments (without the program name). A
// help request comes back as a *flags.Error, see IsHelp.
func ParseOptions(args []string) (PlotConfig, error) {
	var opts Options
	parser := newParser(&opts)

	rest, err := parser.ParseArgs(args)
	if err != nil {
		return PlotConfig{}, err
	}

	if opts.Config != "" {
		configFile := string(opts.Config)

		// Values from the file go in first so the command line overrides them.
		opts = Options{}
		parser = newParser(&opts)
		if err := flags.NewIniParser(parser).ParseFile(configFile); err != nil {
			return PlotConfig{}, fmt.Errorf("config file %s: %w", configFile, err)
		}

		rest, err = parser.ParseArgs(args)
		if err != nil {
			return PlotConfig{}, err
		}
	}

	if len(rest) < 1 || len(rest) > 2 {
		return PlotConfig{}, fmt.Errorf("%w, got %d", ErrUsage, len(rest))
	}

	return PlotConfig{
		DataFilepath: rest[0],
		IncludeZero:  len(rest) == 1,
		TimeColumn:   opts.TimeColumn,
		Relaxed:      opts.Relaxed,
		Output:       opts.Output,
		Width:        vg.Length(opts.Width) * vg.Inch,
		PanelHeight:  vg.Length(opts.PanelHeight) * vg.Inch,
		Title:        opts.Title,
		Host:         opts.Host,
		Port:         opts.Port,
		OpenBrowser:  !opts.NoBrowser,
		CloseGrace:   opts.CloseGrace,
		Verbosity:    len(opts.Verbose),
	}, nil
}

func IsHelp(err error) bool {
	var flagsErr *flags.Error
	return errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp
}
