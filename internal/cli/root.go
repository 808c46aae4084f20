package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tiktorch/internal/config"
	"tiktorch/internal/logging"
	"tiktorch/internal/service"
)

const (
	FlagHome         = "home"
	FlagConfig       = "config"
	FlagLogLevel     = "log-level"
	FlagLogFormat    = "log-format"
	FlagServiceRoot  = "service-root"
	FlagDataDir      = "data-dir"
	FlagPollInterval = "poll-interval"
)

var (
	version = "dev"
	commit  = "none"
)

// rootOptions carries the persistent flags and the viper instance they
// are bound to.
type rootOptions struct {
	v          *viper.Viper
	home       string
	configFile string
}

// app is the resolved runtime shared by commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func (o *rootOptions) setup() (*app, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load(o.v, o.configFile, o.home)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	if envErr != nil {
		logger.Debug("No .env file found")
	}
	logger.Debug("Loaded configuration", zap.Object("config", cfg))
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func (a *app) clientConfig() service.ClientConfig {
	return service.ClientConfig{
		PollInterval:    a.cfg.PollInterval,
		MaxPollAttempts: a.cfg.MaxPollAttempts,
		MaxPollDuration: a.cfg.MaxPollDuration,
		MaxPollBackoff:  a.cfg.MaxPollBackoff,
	}
}

func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "prints the version of tiktorch-cli",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\nCommit: %s\n", version, commit)
			return nil
		},
	}
}

// RootCmd creates the root command, binding the global flags to a fresh
// viper instance and adding all subcommands.
func RootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	r := &cobra.Command{
		Use:           "tiktorch-cli",
		Short:         "tiktorch-cli uploads recordings to the TikTorch processing service and saves the results.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := r.PersistentFlags()
	flags.StringVar(&opts.home, FlagHome, config.DefaultHome(), "home directory for config and data")
	flags.StringVar(&opts.configFile, FlagConfig, "", "config file (default: <home>/config.yaml)")
	flags.String(FlagLogLevel, "", "log level. debug|info|warn|error")
	flags.String(FlagLogFormat, "", "log format. console|json")
	flags.String(FlagServiceRoot, "", "root URL of the processing service")
	flags.String(FlagDataDir, "", "directory for results and the job journal")
	flags.Duration(FlagPollInterval, 0, "interval between status polls")

	bindings := map[string]string{
		config.KeyLogLevel:     FlagLogLevel,
		config.KeyLogFormat:    FlagLogFormat,
		config.KeyServiceRoot:  FlagServiceRoot,
		config.KeyDataDir:      FlagDataDir,
		config.KeyPollInterval: FlagPollInterval,
	}
	for key, flag := range bindings {
		if err := opts.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	r.AddCommand(
		ProcessCmd(opts),
		JobsCmd(opts),
		StatusCmd(opts),
		ConfigCmd(opts),
		VersionCmd(),
	)

	return r
}

func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
