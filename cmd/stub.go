package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/engage/internal/evaluation"
	"github.com/abhisek/engage/internal/llm"
	"github.com/abhisek/engage/internal/logger"
	"github.com/abhisek/engage/internal/stub"
)

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run local content, feedback and assessment services",
	Long: "Serve canned content, record feedback and grade assessments over HTTP so the terminal app\n" +
		"can run without the real services. Fixtures in --fixtures replace the built-in ones.",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		dir, _ := cmd.Flags().GetString("fixtures")
		delay, _ := cmd.Flags().GetDuration("stream-delay")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Log.Mode)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		defer log.Sync()

		lib, err := stub.LoadDir(dir)
		if err != nil {
			return fmt.Errorf("load fixtures: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := []stub.Option{stub.WithLogger(log), stub.WithStreamDelay(delay)}
		if cfg.LLM.Enabled() {
			// The stub has no journal of its own; LLM calls are only logged.
			provider, err := llm.NewProvider(ctx, cfg.LLM, nil, log)
			if err != nil {
				return fmt.Errorf("LLM provider: %w", err)
			}
			opts = append(opts, stub.WithEvaluator(evaluation.New(provider, cfg.EvaluatorConfig(), log)))
		}

		return stub.New(lib, opts...).ListenAndServe(ctx, addr)
	},
}

func init() {
	stubCmd.Flags().String("addr", "127.0.0.1:8787", "Listen address")
	stubCmd.Flags().String("fixtures", "", "Directory of extra YAML fixtures")
	stubCmd.Flags().Duration("stream-delay", 40*time.Millisecond, "Pause between streamed content frames")
}
