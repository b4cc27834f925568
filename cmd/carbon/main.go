// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sustainable-computing-io/carbon-tracker/config"
	"github.com/sustainable-computing-io/carbon-tracker/internal/control"
	"github.com/sustainable-computing-io/carbon-tracker/internal/exporter/stdout"
	"github.com/sustainable-computing-io/carbon-tracker/internal/logger"
	"github.com/sustainable-computing-io/carbon-tracker/internal/session"
	"github.com/sustainable-computing-io/carbon-tracker/internal/version"
)

const appName = "carbon"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// cli holds the parsed command line
type cli struct {
	configFiles  *[]string
	updateConfig config.ConfigUpdaterFn
	output       *string

	serve, start, stop, status *kingpin.CmdClause

	startReq    control.StartRequest
	intervalSet bool
	interval    *float64

	stopReq      control.StopRequest
	stabilitySet bool
	stability    *int
	waitSet      bool
	wait         *int
}

func newCLI(app *kingpin.Application) *cli {
	c := &cli{}
	c.configFiles = app.Flag("config.file", "Path to YAML configuration file; may be repeated").Strings()
	c.updateConfig = config.RegisterFlags(app)
	c.output = app.Flag("output", "Output format of control commands: json or table").
		Short('o').Default(string(stdout.FormatJSON)).Enum(stdout.Formats...)

	c.serve = app.Command("serve", "Serve the HTTP control surface, metrics and probes until interrupted").Default()

	c.start = app.Command("start", "Start a measurement session")
	c.start.Flag("scenario", "Scenario label of the session").StringVar(&c.startReq.Scenario)
	c.start.Flag("results-dir", "Directory of the raw emission record").StringVar(&c.startReq.ResultsDir)
	c.interval = c.start.Flag("measure-interval", "Sampling interval in seconds").IsSetByUser(&c.intervalSet).Float64()
	c.start.Flag("force", "Restart a running session").BoolVar(&c.startReq.Force)

	c.stop = app.Command("stop", "Stop the measurement session and print its summary")
	c.stop.Flag("summary-csv", "Workload summary to read the request count from").StringVar(&c.stopReq.SummaryCSV)
	c.stop.Flag("write-json", "Also write the summary as JSON to this path").StringVar(&c.stopReq.WriteJSON)
	c.stability = c.stop.Flag("stability-seconds", "Seconds the workload summary must not grow for").
		IsSetByUser(&c.stabilitySet).Int()
	c.wait = c.stop.Flag("wait-timeout", "Maximum seconds to wait for the workload summary").
		IsSetByUser(&c.waitSet).Int()
	c.stop.Flag("reason", "Reason recorded in the summary").Default(session.ReasonManual).StringVar(&c.stopReq.Reason)

	c.status = app.Command("status", "Print the session status")
	return c
}

func (c *cli) startRequest() control.StartRequest {
	req := c.startReq
	if c.intervalSet {
		req.MeasureInterval = c.interval
	}
	return req
}

func (c *cli) stopRequest() control.StopRequest {
	req := c.stopReq
	if c.stabilitySet {
		req.StabilitySeconds = c.stability
	}
	if c.waitSet {
		req.WaitTimeout = c.wait
	}
	return req
}

// run executes the command line args and returns the exit code
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	app := kingpin.New(appName, "Energy and carbon measurement sessions for load tests.")
	app.Version(version.Info().String())
	app.UsageWriter(errOut)
	app.ErrorWriter(errOut)
	c := newCLI(app)

	command, err := app.Parse(args)
	if err != nil {
		fmt.Fprintf(errOut, "%s: error: %s, try --help\n", appName, err)
		return 2
	}

	cfg, err := loadConfig(*c.configFiles, c.updateConfig)
	if err != nil {
		fmt.Fprintf(errOut, "%s: error: %s\n", appName, err)
		return 2
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, errOut)

	if command == c.serve.FullCommand() {
		logVersionInfo(log)
		printConfigInfo(errOut, log, cfg)
		if err := serve(ctx, cfg, log); err != nil {
			log.Error("Carbon tracker terminated with an error", "error", err)
			return 1
		}
		log.Info("Graceful shutdown completed")
		return 0
	}

	format, err := stdout.ParseFormat(*c.output)
	if err != nil {
		fmt.Fprintf(errOut, "%s: error: %s\n", appName, err)
		return 2
	}

	var action func(control.Controller) (control.Reply, error)
	switch command {
	case c.start.FullCommand():
		req := c.startRequest()
		action = func(ctrl control.Controller) (control.Reply, error) { return ctrl.Start(ctx, req) }
	case c.stop.FullCommand():
		req := c.stopRequest()
		action = func(ctrl control.Controller) (control.Reply, error) { return ctrl.Stop(ctx, req) }
	case c.status.FullCommand():
		action = func(ctrl control.Controller) (control.Reply, error) { return ctrl.Status(ctx) }
	default:
		fmt.Fprintf(errOut, "%s: error: unknown command %q\n", appName, command)
		return 2
	}
	return runControl(cfg, log, out, format, action)
}

// loadConfig merges the config files over the defaults and applies the
// command line flags on top
func loadConfig(files []string, updateConfig config.ConfigUpdaterFn) (*config.Config, error) {
	cfg, err := (&config.Builder{}).MergeFile(files...).Build()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if err := updateConfig(cfg); err != nil {
		return nil, fmt.Errorf("error applying command line flags: %w", err)
	}
	return cfg, nil
}

// runControl executes action against the remote control surface, falling
// back to an in-process manager that is finalized before returning
func runControl(cfg *config.Config, log *slog.Logger, out io.Writer, format stdout.Format,
	action func(control.Controller) (control.Reply, error),
) int {
	env := config.NewEnv(cfg)
	manager := session.NewManager(newDeviceFactory(cfg, log),
		session.WithLogger(log),
		session.WithEnv(env),
	)
	defer func() {
		if err := manager.Shutdown(); err != nil {
			log.Warn("Failed to finalize local session", "error", err)
		}
	}()

	ctrl := control.NewFallback(
		control.NewRemote(env, control.WithRemoteLogger(log)),
		control.NewLocal(manager, control.TagLocal),
		log,
	)

	reply, err := action(ctrl)
	var replyErr control.ReplyError
	switch {
	case errors.As(err, &replyErr):
		reply = replyErr.Reply()
	case err != nil:
		log.Error("Control command failed", "error", err)
		return 1
	}

	if err := stdout.Write(out, format, reply); err != nil {
		log.Error("Failed to print reply", "error", err)
		return 1
	}
	if replyErr != nil {
		return 1
	}
	return 0
}

func logVersionInfo(logger *slog.Logger) {
	v := version.Info()
	logger.Info("Carbon tracker version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func printConfigInfo(out io.Writer, logger *slog.Logger, cfg *config.Config) {
	if !logger.Enabled(context.Background(), slog.LevelInfo) || cfg.Log.Format == "json" {
		return
	}

	fmt.Fprintf(out, `
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}
