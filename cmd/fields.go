package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fieldflow-ai/fieldflow/internal/field"
	"github.com/spf13/cobra"
)

func newFieldsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Inspect field definition files",
	}
	cmd.AddCommand(newFieldsCheckCmd())
	return cmd
}

func newFieldsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a fields definition file and print the normalized list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read fields file: %w", err)
			}
			cfg, err := field.ParseYAML(data)
			if err != nil {
				return fmt.Errorf("parse fields file: %w", err)
			}
			specs, err := field.Normalize(cfg)
			if err != nil {
				return err
			}

			fmt.Printf("%d fields:\n", len(specs))
			for i, spec := range specs {
				line := fmt.Sprintf("  %d. %s", i+1, spec.Name)
				if spec.Label != "" {
					line += fmt.Sprintf(" (%s)", spec.Label)
				}
				if spec.HasRules() {
					line += "  rules: " + strings.Join(spec.Rules, "|")
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
