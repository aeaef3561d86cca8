package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/archonops/supervisor/internal/config"
	"github.com/archonops/supervisor/internal/logging"
)

// CLI defines the operator command surface (spec.md §6 "Operator Command
// Interface").
type CLI struct {
	InitState InitStateCmd `cmd:"" name:"init-state" help:"Create a fresh state snapshot."`
	SetGoal   SetGoalCmd   `cmd:"" name:"set-goal" help:"Replace the goal atomically."`
	Enqueue   EnqueueCmd   `cmd:"" help:"Validate and push task records from a file."`
	Halt      HaltCmd      `cmd:"" help:"Transition to HALTED with a reason."`
	Resume    ResumeCmd    `cmd:"" help:"Transition HALTED back to RUNNING."`
	Status    StatusCmd    `cmd:"" help:"Print a human-readable state summary."`
	Metrics   MetricsCmd   `cmd:"" help:"Print aggregated counts."`
	Start     StartCmd     `cmd:"" help:"Run the control loop in the foreground."`

	Config    string `short:"c" help:"Path to YAML config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or text)." default:"simple"`
}

func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.LogLevel != "info" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.LogFile != "" {
		cfg.Logging.File = c.LogFile
	}
	if c.LogFormat != "simple" {
		cfg.Logging.Format = c.LogFormat
	}
	return cfg, nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("supervisor"),
		kong.Description("Deterministic agent supervisor - control loop over opaque agent CLIs"),
		kong.UsageOnError(),
	)

	cfg, err := cli.loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	output := os.Stderr
	var cleanup func()
	if cfg.Logging.File != "" {
		f, c, openErr := logging.OpenLogFile(cfg.Logging.File)
		if openErr != nil {
			fmt.Fprintln(os.Stderr, openErr)
			os.Exit(1)
		}
		output = f
		cleanup = c
	}
	logger := logging.Init(level, output, cfg.Logging.Format)
	if cleanup != nil {
		defer cleanup()
	}

	e, err := buildEnv(cfg)
	if err != nil {
		logger.Error("failed to initialize backends", "error", err)
		os.Exit(1)
	}

	runErr := ctx.Run(e)
	ctx.FatalIfErrorf(runErr)
}
