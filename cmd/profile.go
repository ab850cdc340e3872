package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/hair-advisor/internal/profile"
	"github.com/kozaktomas/hair-advisor/internal/quiz"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the normalized profile for a set of answers",
	Long: `Normalize quiz answers into the profile JSON sent to the recommendation service.

Answers are given as key=value pairs where the key is a question key and the value
one of its options (matching ignores case, spacing and typographic quotes):

  hair-advisor profile --answer length=Long --answer dryness="Very dry" \
    --answer shine="Super shiny, Almost reflective"`,
	RunE: runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)

	profileCmd.Flags().StringArray("answer", nil, "Answer as key=value (repeatable)")
	profileCmd.Flags().Bool("indent", false, "Indent the JSON output")
	profileCmd.Flags().Bool("list", false, "List question keys and options instead")
}

func runProfile(cmd *cobra.Command, args []string) error {
	catalog := quiz.DefaultCatalog()
	out := cmd.OutOrStdout()

	if mustGetBool(cmd, "list") {
		for _, q := range catalog.Questions {
			fmt.Fprintf(out, "%s: %s\n", q.Key, strings.Join(q.Options, " | "))
		}
		return nil
	}

	answers, err := parseAnswers(catalog, mustGetStringArray(cmd, "answer"))
	if err != nil {
		return err
	}

	p := profile.Normalize(answers)
	var data []byte
	if mustGetBool(cmd, "indent") {
		data, err = json.MarshalIndent(p, "", "  ")
	} else {
		data, err = json.Marshal(p)
	}
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

// parseAnswers resolves key=value pairs against the catalog, replacing each value with
// its catalog label.
func parseAnswers(catalog *quiz.Catalog, pairs []string) (profile.Answers, error) {
	answers := profile.Answers{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid answer %q, expected key=value", pair)
		}
		key = strings.TrimSpace(key)
		q, ok := catalog.Question(catalog.StepOf(key))
		if !ok {
			return nil, fmt.Errorf("unknown question %q", key)
		}
		label, ok := q.Match(value)
		if !ok {
			return nil, fmt.Errorf("%w: %q for %s", quiz.ErrUnknownOption, value, key)
		}
		answers[key] = label
	}
	return answers, nil
}
