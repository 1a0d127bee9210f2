package cmd

import (
	"github.com/spf13/cobra"

	"github.com/abhisek/engage/internal/screen"
	"github.com/abhisek/engage/internal/screens/quiz"
)

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Take a quiz on a topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := homeOptions(cmd)
		return runApp(cmd, func(env *screen.Env) screen.Screen {
			return quiz.New(env, opts.Subject, opts.Topic, opts.QuestionCount, opts.QuestionTypes)
		})
	},
}

func init() {
	addTopicFlags(quizCmd)
	quizCmd.Flags().IntP("count", "n", quiz.DefaultQuestionCount, "Number of questions")
	quizCmd.Flags().StringSlice("types", nil, "Question types to include (multiple-choice, true-false, short-answer, fill-in-blank, matching, long-answer)")
}
