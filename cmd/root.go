package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/engage/internal/config"
	"github.com/abhisek/engage/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "engage",
	Short: "Learning surfaces with engagement tracking",
	Long: "engage opens lessons, cheatsheets, flashcards, scenarios and quizzes in the terminal,\n" +
		"measures how the learner engages with them and sends that feedback back to the content service.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd, nil)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite journal (overrides ENGAGE_DB and config)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (overrides ENGAGE_CONFIG)")
	addTopicFlags(rootCmd)

	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(quizCmd)
	rootCmd.AddCommand(stubCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

const (
	defaultSubject = "earth-science"
	defaultTopic   = "tides"
)

func addTopicFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("subject", "s", defaultSubject, "Subject to study")
	cmd.Flags().StringP("topic", "t", defaultTopic, "Topic within the subject")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then the config file (which already carries ENGAGE_DB), then the default
// XDG path.
func resolveDBPath(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if cfg != nil && cfg.DB != "" {
		return cfg.DB, store.EnsureDir(cfg.DB)
	}
	return store.DefaultDBPath()
}

// openStore loads the config and opens the journal, for the subcommands
// that only read it.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}
