package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"scorebatch/internal/config"
	fileutil "scorebatch/internal/file"
	"scorebatch/internal/remote"
	"scorebatch/internal/settings"
	"scorebatch/internal/task"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scorebatch",
	Short: "Batch uploader for the speech scoring engine",
	Long: `scorebatch queues audio recordings, submits them to a remote scoring
engine with bounded concurrency, and tracks each job until its report is
ready. Run "serve" for the HTTP API or "batch" for a one-shot run from a
manifest file.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "path to the YAML config file")
}

func setup(cmd *cobra.Command, _ []string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	return fileutil.EnsureDir(cfg.DataDir)
}

// buildManager wires the engine client, settings store, and task manager
// from the loaded config. The run configuration snapshot comes from the
// settings store at the start of every run.
func buildManager(cfg config.Config) (*task.Manager, *settings.Store, error) {
	engine := remote.NewClient(remote.Config{
		BaseURL:           cfg.EngineURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})

	store := settings.NewStore(filepath.Join(cfg.DataDir, "settings.json"))
	if err := store.Load(); err != nil {
		return nil, nil, err
	}

	manager := task.NewManager(task.Options{
		DataDir:     cfg.DataDir,
		Engine:      engine,
		EngineMode:  cfg.EngineMode,
		PollMaxWait: cfg.PollMaxWait,
	})
	manager.SetRunConfig(func() task.RunConfig {
		s := store.Get()
		return task.RunConfig{
			Limit:     s.MaxConcurrentUploads,
			Reference: s.ReferenceText,
		}
	})

	return manager, store, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
