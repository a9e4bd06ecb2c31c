package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dialogue-lesson-service/internal/domain"
	"dialogue-lesson-service/internal/grading"
)

// NewCheckCmd grades one answer locally and prints the result as JSON.
func NewCheckCmd() *cobra.Command {
	var expected, required, answer string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Grade an answer against expected variants without starting the server",
		Example: `  lesson-service check --expected "I am a student" --answer "I'm a student"
  lesson-service check --expected '["I have a cat", "I have got a cat"]' --required '["have"]' --answer "I have cat"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := parseAnswer(expected)
			if err != nil {
				return err
			}
			var req domain.RequiredWords
			if strings.TrimSpace(required) != "" {
				if err := json.Unmarshal([]byte(required), &req); err != nil {
					return fmt.Errorf("parse --required: %w", err)
				}
			}
			result := grading.Validate(answer, exp, req)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&expected, "expected", "", "expected answer: plain text or a JSON string/array")
	cmd.Flags().StringVar(&required, "required", "", "required words as JSON array (or array of arrays)")
	cmd.Flags().StringVar(&answer, "answer", "", "learner answer to grade")
	_ = cmd.MarkFlagRequired("expected")
	return cmd
}

// parseAnswer accepts JSON in any shape the script format allows and falls back to plain text.
func parseAnswer(raw string) (domain.Answer, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") || strings.HasPrefix(raw, `"`) {
		var a domain.Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return domain.Answer{}, fmt.Errorf("parse --expected: %w", err)
		}
		return a, nil
	}
	return domain.NewAnswer(raw), nil
}
