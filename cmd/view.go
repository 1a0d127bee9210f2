package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/screen"
	"github.com/abhisek/engage/internal/screens/viewer"
)

var viewCmd = &cobra.Command{
	Use:       "view <surface>",
	Short:     "Open a single content surface",
	Long:      "Open a lesson, cheatsheet, flashcards or scenario viewer directly. Use `engage quiz` for quizzes.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: surfaceNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := content.Kind(strings.ToLower(args[0]))
		if !kind.Valid() || kind == content.KindQuiz {
			return fmt.Errorf("unknown surface %q (want one of %s)", args[0], strings.Join(surfaceNames(), ", "))
		}
		subject, _ := cmd.Flags().GetString("subject")
		topic, _ := cmd.Flags().GetString("topic")
		return runApp(cmd, func(env *screen.Env) screen.Screen {
			return viewer.New(env, kind, subject, topic)
		})
	},
}

func surfaceNames() []string {
	var names []string
	for _, k := range content.Kinds() {
		if k != content.KindQuiz {
			names = append(names, string(k))
		}
	}
	return names
}

func init() {
	addTopicFlags(viewCmd)
}
