package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/qa/adaptor/anthropic"
	"github.com/qaforge/convotest/qa/endpoint"
	"github.com/qaforge/convotest/qa/event"
	"github.com/qaforge/convotest/qa/meta"
	"github.com/qaforge/convotest/qa/model"
	"github.com/qaforge/convotest/qa/runner"
)

// errRunFailed is returned when the run finished but some pair did not pass.
var errRunFailed = errors.New("one or more conversations failed")

type runOptions struct {
	File            string
	APIKey          string
	Model           string
	Concurrency     int
	EndpointTimeout time.Duration
	Events          string
	Out             string
	Verbose         bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every scenario of a definition file against every persona",
	Long: `Run drives one simulated conversation per (scenario, persona) pair of the
definition file, judges each one and prints a pass/fail matrix.

The process exits non-zero when any conversation fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		_, err := execute(ctx, runOpts, cmd.OutOrStdout(), nil)
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runOpts.File, "file", "f", "", "Test definition JSON file")
	runCmd.Flags().StringVar(&runOpts.APIKey, "api-key", os.Getenv("ANTHROPIC_API_KEY"), "Capability API key (defaults to $ANTHROPIC_API_KEY)")
	runCmd.Flags().StringVarP(&runOpts.Model, "model", "m", config.DefaultModel, "Capability model")
	runCmd.Flags().IntVarP(&runOpts.Concurrency, "concurrency", "j", config.RunConcurrency, "Pairs executed at once")
	runCmd.Flags().DurationVar(&runOpts.EndpointTimeout, "endpoint-timeout", config.EndpointTimeout, "Bound for each call to the endpoint under test")
	runCmd.Flags().StringVar(&runOpts.Events, "events", "", "Write the event feed as JSON lines to this file, or - for stdout")
	runCmd.Flags().StringVarP(&runOpts.Out, "out", "o", "", "Write the finished run as JSON to this file")
	runCmd.Flags().BoolVarP(&runOpts.Verbose, "verbose", "v", false, "Enable debug logging")
	_ = runCmd.MarkFlagRequired("file")
}

// execute runs the definition in opt.File and renders the matrix to w.
// wire, when set, may replace collaborators before the runner is built.
func execute(ctx context.Context, opt runOptions, w io.Writer, wire func(*runner.Options)) (*model.TestRun, error) {
	if opt.Verbose {
		_ = logger.Logger.ChangeLevel("debug")
	}
	lg := logger.Logger.Named("cli")

	def, err := loadDefinitionFile(opt.File)
	if err != nil {
		return nil, err
	}

	m := meta.New(opt.APIKey, opt.Model)
	if opt.Concurrency > 0 {
		m.Concurrency = opt.Concurrency
	}
	if opt.EndpointTimeout > 0 {
		m.EndpointTimeout = opt.EndpointTimeout
	}

	store := &fileStore{def: def}
	ro := runner.Options{
		Store:      store,
		Meta:       m,
		Capability: anthropic.New(&http.Client{}),
		Personas:   store,
		Caller:     endpoint.NewCaller(&http.Client{}, m.EndpointTimeout),
	}
	if wire != nil {
		wire(&ro)
	}
	r := runner.New(ro)

	prepared, err := r.Prepare(ctx, def.ID, "", "cli")
	if err != nil {
		return nil, err
	}

	writer, closeEvents, err := eventWriter(opt.Events, w)
	if err != nil {
		return nil, err
	}
	defer closeEvents()

	lg.Info("running test definition",
		zap.String("test_id", def.ID),
		zap.Int("scenarios", len(prepared.Definition.Scenarios)),
		zap.Int("personas", len(prepared.Definition.PersonaIDs)),
		zap.Int("concurrency", m.Concurrency))

	sink := event.NewSink(writer, 0)
	run, runErr := r.Execute(ctx, prepared, sink)
	if err = sink.Close(); err != nil {
		lg.Warn("event feed closed early", zap.Error(err))
	}

	renderMatrix(w, prepared.Definition, run)

	if opt.Out != "" {
		if err = writeRun(opt.Out, run); err != nil {
			return run, err
		}
	}
	if runErr != nil {
		return run, runErr
	}
	if run.Metrics.Failed > 0 {
		return run, errors.Wrapf(errRunFailed, "%d of %d", run.Metrics.Failed, run.Metrics.Total)
	}
	return run, nil
}

// eventWriter picks where the event feed goes. With no destination the
// events are only counted.
func eventWriter(dest string, stdout io.Writer) (event.Writer, func(), error) {
	switch dest {
	case "":
		return event.WriterFunc(func(model.Event) error { return nil }), func() {}, nil
	case "-":
		return event.NewJSONLinesWriter(stdout), func() {}, nil
	default:
		fd, err := os.Create(dest)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "create events file %s", dest)
		}
		return event.NewJSONLinesWriter(fd), func() { _ = fd.Close() }, nil
	}
}

func writeRun(path string, run *model.TestRun) error {
	payload, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal run")
	}
	if err = os.WriteFile(path, payload, 0o644); err != nil {
		return errors.Wrapf(err, "write run %s", path)
	}
	fmt.Fprintf(os.Stderr, "run written to %s\n", path)
	return nil
}
