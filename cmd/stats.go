package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize feedback and quiz results from the local journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := context.Background()
		repo := s.EventRepo()

		surfaces, err := repo.FeedbackStats(ctx)
		if err != nil {
			return fmt.Errorf("query feedback: %w", err)
		}
		quizzes, err := repo.QuizStats(ctx)
		if err != nil {
			return fmt.Errorf("query quizzes: %w", err)
		}

		if len(surfaces) == 0 && quizzes.Quizzes == 0 {
			fmt.Println("Nothing recorded yet.")
			return nil
		}

		if len(surfaces) > 0 {
			fmt.Println("Feedback by Surface")
			fmt.Println(strings.Repeat("─", 86))
			fmt.Printf("%-12s  %5s  %7s  %6s  %9s  %9s  %8s  %8s\n",
				"Surface", "Sent", "On exit", "Failed", "Avg time", "Avg done", "Helpful", "Engaging")
			fmt.Println(strings.Repeat("─", 86))
			for _, st := range surfaces {
				fmt.Printf("%-12s  %5d  %7d  %6d  %8.0fs  %8.0f%%  %8s  %8s\n",
					st.Surface, st.Submissions, st.Reduced, st.Failed,
					st.AvgTimeSeconds, st.AvgCompletion,
					formatRating(st.AvgHelpful), formatRating(st.AvgEngagement))
			}
		}

		if quizzes.Quizzes > 0 {
			if len(surfaces) > 0 {
				fmt.Println()
			}
			fmt.Println("Quizzes")
			fmt.Println(strings.Repeat("─", 40))
			fmt.Printf("Taken:      %d\n", quizzes.Quizzes)
			fmt.Printf("Average:    %.0f%%\n", quizzes.AvgScore)
			fmt.Printf("Best:       %d%%\n", quizzes.BestScore)
			fmt.Printf("Last:       %d%% on %s (%s)\n",
				quizzes.LastScore, quizzes.LastTopic, quizzes.LastTaken.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// formatRating shows "-" for surfaces that never collected that rating.
func formatRating(avg float64) string {
	if avg == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f/5", avg)
}
