package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"citybuilder/internal/config"
	"citybuilder/internal/logging"
)

// app carries state shared by every subcommand once PersistentPreRunE ran.
type app struct {
	configPath string
	verbose    bool
	blobDriver string
	stateKey   string

	cfg    config.Config
	logger *zap.Logger
	out    io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{out: stdout, logger: zap.NewNop()}
	root := &cobra.Command{
		Use:           "citybuilder",
		Short:         "Compose a city skyline out of colored, multi-floor houses",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&a.blobDriver, "blob-driver", "", "override the blob driver (memory|fs|s3|sqlite|postgres)")
	flags.StringVar(&a.stateKey, "state-key", "", "override the blob key holding the collection")

	root.AddCommand(
		newServeCmd(a),
		newHousesCmd(a),
		newWeatherCmd(a),
		newRenderCmd(a),
	)
	return root
}

// init loads configuration in layers (defaults, file, environment, flags),
// validates it and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, os.LookupEnv)
	if err != nil {
		return err
	}
	if a.blobDriver != "" {
		cfg.Blob.Driver = a.blobDriver
	}
	if a.stateKey != "" {
		cfg.StateKey = a.stateKey
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		cfg.ListenAddr = f.Value.String()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}
