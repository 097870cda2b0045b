// Package main provides a CLI for the formlogic engine: evaluating
// submissions, verifying stored reports, linting forms and serving the API.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dlovans/formlogic/pkg/formlogic"
	"github.com/dlovans/formlogic/pkg/lint"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "formlogic",
		Short:        "Validation and conditional logic engine for form submissions",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("types", "", "Validation type overrides (YAML or JSON)")

	root.AddCommand(newEvalCmd(), newVerifyCmd(), newLintCmd(), newServeCmd())
	return root
}

func newEvalCmd() *cobra.Command {
	var formPath, responsePath, dateStr string
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a response against a form and print the report",
		Example: `  formlogic eval --form signup.yaml --response answers.json --date 2025-06-15
  cat answers.json | formlogic eval --form signup.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(dateStr)
			if err != nil {
				return err
			}
			engine, err := engineFromFlags(cmd)
			if err != nil {
				return err
			}
			form, err := os.ReadFile(formPath)
			if err != nil {
				return fmt.Errorf("reading form: %w", err)
			}
			response, err := readInput(cmd, responsePath)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}

			out, err := engine.Run(form, response, date)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&formPath, "form", "", "Form document (YAML or JSON)")
	cmd.Flags().StringVar(&responsePath, "response", "", "Response JSON file (or use stdin)")
	cmd.Flags().StringVar(&dateStr, "date", "", "Submission date (YYYY-MM-DD or RFC 3339, defaults to now)")
	_ = cmd.MarkFlagRequired("form")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var formPath, responsePath, reportPath string
	cmd := &cobra.Command{
		Use:     "verify",
		Short:   "Replay a stored report and confirm it matches",
		Example: `  formlogic verify --form signup.json --response answers.json --report report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := engineFromFlags(cmd)
			if err != nil {
				return err
			}
			var inputs [3][]byte
			for i, path := range []string{formPath, responsePath, reportPath} {
				if inputs[i], err = os.ReadFile(path); err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
			}

			valid, err := engine.Verify(inputs[0], inputs[1], inputs[2])
			if err != nil || !valid {
				fmt.Fprintln(cmd.OutOrStdout(), "✗ Report verification failed")
				if err == nil {
					err = formlogic.ErrReportMismatch
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Report verified: replay matches")
			return nil
		},
	}
	cmd.Flags().StringVar(&formPath, "form", "", "Form document (YAML or JSON)")
	cmd.Flags().StringVar(&responsePath, "response", "", "Response JSON file")
	cmd.Flags().StringVar(&reportPath, "report", "", "Report JSON to verify")
	for _, name := range []string{"form", "response", "report"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newLintCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Check a form document for configuration problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, filePath)
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			reg, err := registryFromFlags(cmd)
			if err != nil {
				return err
			}
			result, err := lint.Run(input, reg)
			if err != nil {
				return err
			}
			return printIssues(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "Form document to lint (or use stdin)")
	return cmd
}

func printIssues(w io.Writer, result *lint.Result) error {
	if len(result.Issues) == 0 {
		fmt.Fprintln(w, "✓ No issues found")
		return nil
	}

	for _, issue := range result.Issues {
		icon := "⚠"
		if issue.Severity == "error" {
			icon = "✗"
		}
		location := ""
		if issue.Field != "" {
			location = fmt.Sprintf(" [field: %s]", issue.Field)
		}
		if issue.Rule != "" {
			location += fmt.Sprintf(" [rule: %s]", issue.Rule)
		}
		fmt.Fprintf(w, "%s %s%s: %s\n", icon, issue.Severity, location, issue.Message)
	}

	if !result.Valid {
		return fmt.Errorf("form has errors")
	}
	return nil
}

// engineFromFlags builds an engine with the --types registry, if any.
func engineFromFlags(cmd *cobra.Command) (*formlogic.Engine, error) {
	reg, err := registryFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	return formlogic.NewEngine(formlogic.WithRegistry(reg)), nil
}

func registryFromFlags(cmd *cobra.Command) (*formlogic.Registry, error) {
	path, _ := cmd.Flags().GetString("types")
	if path == "" {
		return nil, nil
	}
	return loadRegistryFile(path)
}

func loadRegistryFile(path string) (*formlogic.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading validation types: %w", err)
	}
	return formlogic.LoadRegistry(data)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	return io.ReadAll(cmd.InOrStdin())
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format '%s'", s)
}
