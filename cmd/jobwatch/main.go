package main

import (
	"fmt"
	"os"

	"github.com/dusk-indust/jobwatch/internal/backend"
	"github.com/dusk-indust/jobwatch/internal/config"
	"github.com/dusk-indust/jobwatch/internal/logging"
	"github.com/dusk-indust/jobwatch/internal/tracker"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// version is set by goreleaser at build time.
var version = "dev"

// Persistent flags shared by every subcommand.
type rootFlags struct {
	ConfigDir string
	APIURL    string
	LogLevel  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:   "jobwatch",
		Short: "Start market analysis jobs and follow their progress",
		Long: `jobwatch starts an analysis job on the backend, polls its progress
endpoint once per interval, prints every step transition once, and fetches the
final result when the backend reports completion.

Examples:
  jobwatch run
  jobwatch run --api-url https://api.example.com --max-polls 120
  jobwatch latest --json
  jobwatch serve-mcp`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigDir, "config-dir", ".", "directory containing jobwatch.yml")
	root.PersistentFlags().StringVar(&flags.APIURL, "api-url", "", "analysis API base URL (overrides config and "+config.EnvAPIURL+")")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newRunCmd(&flags),
		newLatestCmd(&flags),
		newStepsCmd(),
		newServeMCPCmd(&flags),
		newInitCmd(),
	)
	return root
}

// env is the wiring shared by subcommands that talk to the backend.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	client *backend.HTTPClient
}

func loadEnv(cmd *cobra.Command, flags *rootFlags) (*env, error) {
	cfg, err := config.Load(flags.ConfigDir)
	if err != nil {
		return nil, err
	}
	if flags.APIURL != "" {
		cfg.APIBaseURL = flags.APIURL
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.Init(cfg.LogLevel, cmd.ErrOrStderr())
	client := backend.NewHTTPClient(cfg.APIBaseURL,
		backend.WithRequestTimeout(cfg.RequestTimeout),
		backend.WithSubmitTimeout(cfg.SubmitTimeout),
	)
	return &env{cfg: cfg, logger: logger, client: client}, nil
}

func (e *env) policy() tracker.Policy {
	return tracker.Policy{
		Interval:             e.cfg.PollInterval,
		MaxPolls:             e.cfg.MaxPolls,
		MaxConsecutiveErrors: e.cfg.MaxConsecutiveErrors,
	}
}

func (e *env) tracker(p tracker.Policy) *tracker.Tracker {
	return tracker.New(e.client, tracker.WithPolicy(p), tracker.WithLogger(e.logger))
}
