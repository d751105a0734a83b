package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chanrelay/chanrelay/internal/expression"
)

var expressionScopeFlags []string

// expressionCmd groups operator tools for working with filter and
// data-mapping expressions outside of the running server.
var expressionCmd = &cobra.Command{
	Use:   "expression",
	Short: "Expression engine tools",
	Long:  `Commands for validating filter and data-mapping expressions against the field registry.`,
}

var expressionValidateCmd = &cobra.Command{
	Use:   "validate <expression>",
	Short: "Validate an expression against the field registry",
	Long: `Validate checks an expression's syntax and field references against the
same field registry the pipeline uses at runtime.

By default it validates against both stream and EPG filtering fields. Pass
--scope to restrict to one or more scopes (stream_filtering, epg_filtering,
stream_data_mapping, epg_data_mapping).`,
	Args: cobra.ExactArgs(1),
	RunE: runExpressionValidate,
}

func init() {
	rootCmd.AddCommand(expressionCmd)
	expressionCmd.AddCommand(expressionValidateCmd)

	expressionValidateCmd.Flags().StringSliceVar(&expressionScopeFlags, "scope", nil,
		"scope(s) to validate against (repeatable): stream_filtering, epg_filtering, stream_data_mapping, epg_data_mapping")
}

func runExpressionValidate(cmd *cobra.Command, args []string) error {
	scopes, err := parseExpressionScopes(expressionScopeFlags)
	if err != nil {
		return err
	}

	validator := expression.NewValidator(expression.DefaultRegistry())
	result := validator.Validate(args[0], scopes...)

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling validation result: %w", err)
	}
	fmt.Println(string(output))

	if !result.IsValid {
		return fmt.Errorf("expression is invalid: %d error(s)", len(result.Errors))
	}
	return nil
}

// parseExpressionScopes converts --scope flag values into Scope pairs,
// defaulting to the validator's own stream/EPG filtering default when none
// are given.
func parseExpressionScopes(raw []string) ([]expression.Scope, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	scopes := make([]expression.Scope, 0, len(raw))
	for _, s := range raw {
		scope, ok := expression.ParseScope(strings.TrimSpace(s))
		if !ok {
			return nil, fmt.Errorf("unrecognized scope %q", s)
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}
