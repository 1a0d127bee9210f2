package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/engage/internal/api"
	"github.com/abhisek/engage/internal/app"
	"github.com/abhisek/engage/internal/config"
	"github.com/abhisek/engage/internal/evaluation"
	"github.com/abhisek/engage/internal/llm"
	"github.com/abhisek/engage/internal/logger"
	"github.com/abhisek/engage/internal/screen"
	"github.com/abhisek/engage/internal/screens/home"
	"github.com/abhisek/engage/internal/store"
)

// runApp opens the store, builds dependencies, and launches the TUI. initial
// builds the root screen; nil means the home menu.
func runApp(cmd *cobra.Command, initial func(env *screen.Env) screen.Screen) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The terminal belongs to the TUI, so logs go to a file.
	log, err := logger.NewFile(cfg.Log.Mode, cfg.LogPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Logging disabled:", err)
		log = logger.Nop()
	}
	defer log.Sync()

	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	env, err := buildEnv(ctx, cfg, st.EventRepo(), log)
	if err != nil {
		return err
	}

	opts := app.Options{Home: homeOptions(cmd)}
	if initial != nil {
		opts.Initial = initial(env)
	}
	log.Info("starting", "api", cfg.API.URL, "db", dbPath, "config", cfg.Path)
	return app.Run(env, opts)
}

// buildEnv wires the collaborators every screen shares.
func buildEnv(ctx context.Context, cfg *config.Config, repo store.EventRepo, log *logger.Logger) (*screen.Env, error) {
	client, err := api.New(api.Config{
		BaseURL:       cfg.API.URL,
		Timeout:       cfg.API.Timeout,
		StreamTimeout: cfg.API.StreamTimeout,
		UserAgent:     "engage/" + version,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}

	env := &screen.Env{
		Learner:     cfg.Learner,
		Content:     client,
		Feedback:    client,
		Assessments: client,
		Repo:        repo,
		Stream:      cfg.API.Stream,
		Parallelism: cfg.Evaluation.Parallelism,
		Profiles:    cfg.Profile,
		Log:         log,
	}

	if cfg.LLM.Enabled() {
		provider, err := llm.NewProvider(ctx, cfg.LLM, repo, log)
		if err != nil {
			// Long answers fall back to the service's evaluations.
			log.Warn("LLM evaluator unavailable", "provider", cfg.LLM.Provider, "error", err)
		} else {
			env.Evaluator = evaluation.New(provider, cfg.EvaluatorConfig(), log)
		}
	}
	return env, nil
}

func homeOptions(cmd *cobra.Command) home.Options {
	subject, _ := cmd.Flags().GetString("subject")
	topic, _ := cmd.Flags().GetString("topic")
	count, _ := cmd.Flags().GetInt("count")
	types, _ := cmd.Flags().GetStringSlice("types")
	return home.Options{
		Subject:       subject,
		Topic:         topic,
		QuestionCount: count,
		QuestionTypes: types,
	}
}
