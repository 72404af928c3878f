package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/httpmetrics/internal/config"
	"github.com/wesleyorama2/httpmetrics/internal/output"
	"github.com/wesleyorama2/httpmetrics/internal/runner"
	"github.com/wesleyorama2/httpmetrics/internal/sink"
)

var version = "0.1.0"

type rootOptions struct {
	configPath string
	output     string
	verbose    bool
	noColor    bool

	method          string
	interval        string
	loop            int
	background      bool
	reuseConnection bool
	data            string
	timeout         string

	influx       bool
	influxURL    string
	influxToken  string
	influxOrg    string
	influxBucket string
	location     string

	hostname func() (string, error)
}

// NewRootCmd creates the httpmetrics command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{hostname: os.Hostname}

	cmd := &cobra.Command{
		Use:     "httpmetrics [URL]",
		Short:   "Measure the phase timings of HTTP requests",
		Version: version,
		Long: `httpmetrics sends HTTP requests to a URL and reports how long each phase
of the request took: DNS resolution, TCP connect, TLS handshake, time to
first byte and the full transfer.

A single request is sent by default. --loop N sends N requests and prints
their average, --background keeps probing until interrupted. Samples can
be written to InfluxDB with --influx.

Examples:
  httpmetrics https://example.com
  httpmetrics https://example.com --loop 10 --interval 2s --reuse-connection
  httpmetrics --config probe.yaml --background --influx`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.method, "method", "x", config.DefaultMethod, "HTTP method to use")
	flags.StringVarP(&opts.interval, "interval", "i", "0s", "Pause between requests (Go duration or seconds)")
	flags.IntVarP(&opts.loop, "loop", "l", 0, "Number of requests to send before printing the average")
	flags.BoolVarP(&opts.background, "background", "b", false, "Probe until interrupted")
	flags.BoolVarP(&opts.reuseConnection, "reuse-connection", "r", false, "Send every request over one connection")
	flags.StringVarP(&opts.data, "data", "d", "", "Request body for POST, PUT, PATCH and DELETE")
	flags.StringVarP(&opts.timeout, "timeout", "t", config.DefaultTimeout.String(), "Request timeout (Go duration or seconds)")
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML or JSON configuration file")

	flags.BoolVar(&opts.influx, "influx", false, "Export every sample to InfluxDB")
	flags.StringVar(&opts.influxURL, "influx-url", "", "InfluxDB server URL")
	flags.StringVar(&opts.influxToken, "influx-token", "", "InfluxDB API token")
	flags.StringVar(&opts.influxOrg, "influx-org", "", "InfluxDB organization")
	flags.StringVar(&opts.influxBucket, "influx-bucket", "", "InfluxDB bucket")
	flags.StringVar(&opts.location, "location", "", "Location tag of exported samples (default: host name)")

	flags.StringVarP(&opts.output, "output", "o", string(output.FormatText), "Output format: text, json or yaml")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging on stderr")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

// Execute runs the httpmetrics command and prints the error that ended it.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", output.ErrorIcon(color.NoColor), err)
		return err
	}
	return nil
}

func (o *rootOptions) run(cmd *cobra.Command, args []string) error {
	log := newLogger(cmd.ErrOrStderr(), o.verbose).WithField("run_id", uuid.NewString())

	var file *config.FileConfig
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return err
		}
		file = loaded
		log.WithField("path", o.configPath).Debug("Loaded configuration file")
	}

	flags, err := o.flags(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := config.Merge(file, flags, o.hostname)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(o.output)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	reporter := output.NewReporter(format, out, o.noColor || !isTerminal(out))

	options := []runner.Option{
		runner.WithReporter(reporter),
		runner.WithLogger(log),
	}

	if cfg.Sink.Enabled {
		influx, err := sink.NewInflux(cfg.Sink)
		if err != nil {
			return err
		}
		defer func() {
			if err := influx.Close(); err != nil {
				log.WithError(err).Warn("Closing InfluxDB client")
			}
		}()
		options = append(options, runner.WithSink(influx))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = runner.NewController(cfg, options...).Run(ctx)
	return err
}

// flags collects the values given on the command line; a flag the user did
// not set stays nil so the configuration file can provide it.
func (o *rootOptions) flags(cmd *cobra.Command, args []string) (config.Flags, error) {
	var flags config.Flags
	if len(args) == 1 {
		flags.URL = args[0]
	}

	changed := cmd.Flags().Changed

	if changed("method") {
		flags.Method = &o.method
	}
	if changed("interval") {
		interval, err := config.ParseDurationString(o.interval)
		if err != nil {
			return flags, fmt.Errorf("invalid --interval: %w", err)
		}
		flags.Interval = &interval
	}
	if changed("loop") {
		flags.Loop = &o.loop
	}
	if changed("background") {
		flags.Background = &o.background
	}
	if changed("reuse-connection") {
		flags.ReuseConnection = &o.reuseConnection
	}
	if changed("data") {
		flags.Data = &o.data
	}
	if changed("timeout") {
		timeout, err := config.ParseDurationString(o.timeout)
		if err != nil {
			return flags, fmt.Errorf("invalid --timeout: %w", err)
		}
		flags.Timeout = &timeout
	}
	if changed("influx") {
		flags.Influx = &o.influx
	}
	if changed("influx-url") {
		flags.InfluxURL = &o.influxURL
	}
	if changed("influx-token") {
		flags.InfluxToken = &o.influxToken
	}
	if changed("influx-org") {
		flags.InfluxOrg = &o.influxOrg
	}
	if changed("influx-bucket") {
		flags.InfluxBucket = &o.influxBucket
	}
	if changed("location") {
		flags.Location = &o.location
	}

	return flags, nil
}

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.WarnLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && output.IsTerminal(f)
}
