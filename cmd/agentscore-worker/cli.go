package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"agentscore/internal/config"
	"agentscore/internal/worker"
)

const version = "1.0.0"

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// isTTY reports whether stdout is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func errorText(msg string) string {
	return red("error: " + msg)
}

// cliFlags are the flags shared by every subcommand.
type cliFlags struct {
	v             *viper.Viper
	envFile       string
	identity      string
	taskSourceURL string
	statePath     string
	statusAddr    string
}

func newRootCommand() *cobra.Command {
	flags := &cliFlags{v: viper.New()}

	root := &cobra.Command{
		Use:   "agentscore-worker",
		Short: "Autonomous AgentScore task worker",
		Long: fmt.Sprintf(`%s

Polls the AgentScore task source, executes one task at a time, keeps the
reputation ledger current and reports progress to Moltbook. Progress is kept
in a state file so a restart resumes where the worker left off.`,
			bold("AgentScore worker "+version)),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(flags.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Dotenv file loaded before configuration")
	pf.StringVar(&flags.identity, "identity", "", "Agent address")
	pf.StringVar(&flags.taskSourceURL, "api-url", "", "Task source base URL")
	pf.StringVar(&flags.statePath, "state", "", "State file path")
	root.Flags().StringVar(&flags.statusAddr, "status-addr", "", "Status server listen address, empty disables it")

	flags.v.SetEnvPrefix("AGENTSCORE")
	flags.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	flags.v.AutomaticEnv()
	_ = flags.v.BindPFlag("config", pf.Lookup("config"))
	_ = flags.v.BindPFlag("log-level", pf.Lookup("log-level"))

	root.AddCommand(newStatusCommand(flags))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the worker version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

// loadEnvFile reads a dotenv file without overriding variables that are
// already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadConfig resolves the worker configuration from file, environment and
// flags, in increasing priority.
func (f *cliFlags) loadConfig(cmd *cobra.Command) (config.WorkerConfig, config.Metadata, error) {
	var overrides config.Overrides
	if level := f.v.GetString("log-level"); level != "" {
		overrides.LogLevel = &level
	}
	if cmd.Flags().Changed("identity") {
		overrides.Identity = &f.identity
	}
	if cmd.Flags().Changed("api-url") {
		overrides.TaskSourceURL = &f.taskSourceURL
	}
	if cmd.Flags().Changed("state") {
		overrides.StatePath = &f.statePath
	}
	if flag := cmd.Flags().Lookup("status-addr"); flag != nil && flag.Changed {
		overrides.StatusAddr = &f.statusAddr
	}

	return config.Load(
		config.WithEnv(config.DefaultEnvLookupWithAliases()),
		config.WithConfigPath(f.v.GetString("config")),
		config.WithOverrides(overrides),
	)
}

func printBanner(out io.Writer, cfg config.WorkerConfig, statePath string) {
	source := cfg.TaskSourceURL
	if source == "" {
		source = "local (synthesized tasks only)"
	}
	moltbookMode := "disabled"
	switch {
	case cfg.MoltbookEnabled && cfg.MoltbookLive:
		moltbookMode = "live"
	case cfg.MoltbookEnabled:
		moltbookMode = "demo"
	}

	if !isTTY() {
		fmt.Fprintf(out, "AgentScore worker %s identity=%s source=%s moltbook=%s state=%s\n",
			version, cfg.Identity, source, moltbookMode, statePath)
		return
	}
	fmt.Fprintf(out, "%s\n", bold(cyan("AgentScore worker "+version)))
	fmt.Fprintf(out, "  %s %s\n", gray("identity"), cfg.Identity)
	fmt.Fprintf(out, "  %s   %s\n", gray("source"), source)
	fmt.Fprintf(out, "  %s %s\n", gray("moltbook"), moltbookMode)
	fmt.Fprintf(out, "  %s    %s\n", gray("state"), statePath)
	fmt.Fprintf(out, "  %s     poll %s, mock %s, report %s\n\n", gray("cadence"),
		cfg.PollInterval, cfg.MockInterval, cfg.ReportInterval)
}

func printStats(out io.Writer, title string, stats worker.Stats) {
	delta := fmt.Sprintf("%+d", stats.TotalRepGained)
	if stats.TotalRepGained >= 0 {
		delta = green(delta)
	} else {
		delta = red(delta)
	}
	payout := stats.TotalPayout
	if payout == "" {
		payout = "0.00"
	}

	fmt.Fprintf(out, "%s\n", bold(title))
	fmt.Fprintf(out, "  tasks completed: %d\n", stats.TasksCompleted)
	fmt.Fprintf(out, "  reputation:      %d/100 (%s)\n", stats.Reputation, delta)
	fmt.Fprintf(out, "  total payout:    %s\n", payout)
	fmt.Fprintf(out, "  moltbook posts:  %d\n", stats.Posts)
	fmt.Fprintf(out, "  last broadcast:  %s\n", formatWhen(stats.LastBroadcast))
	if stats.Uptime > 0 {
		fmt.Fprintf(out, "  uptime:          %s\n", stats.Uptime.Truncate(time.Second))
	}
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return yellow("never")
	}
	return t.Local().Format(time.RFC3339)
}
