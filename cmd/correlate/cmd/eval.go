package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/correlate/internal/formula"
	"github.com/solatis/correlate/internal/types"
)

var evalCmd = &cobra.Command{
	Use:   "eval --formula \"A and B\" --true A",
	Short: "Evaluate a formula for a set of matched conditions",
	Long: `eval evaluates a letter formula, or with --numeric a stored numeric
formula compiled to CEL, and prints true or false. Conditions named by
--true are matched; every other condition is not.`,
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().String("formula", "", "formula to evaluate")
	evalCmd.Flags().StringSlice("true", nil, "matched conditions (letters, or IDs with --numeric)")
	evalCmd.Flags().Bool("numeric", false, "formula uses condition IDs")
	evalCmd.MarkFlagRequired("formula")
}

func runEval(cmd *cobra.Command, args []string) error {
	text, _ := cmd.Flags().GetString("formula")
	matched, _ := cmd.Flags().GetStringSlice("true")
	numeric, _ := cmd.Flags().GetBool("numeric")

	result, err := evaluate(cmd.Context(), text, matched, numeric)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}

func evaluate(ctx context.Context, text string, matched []string, numeric bool) (bool, error) {
	if !numeric {
		expr, err := formula.Parse(text)
		if err != nil {
			return false, err
		}
		set := make(map[string]bool, len(matched))
		for _, m := range matched {
			set[strings.ToUpper(strings.TrimSpace(m))] = true
		}
		return formula.Evaluate(expr, func(name string) bool { return set[name] }), nil
	}

	expr, err := formula.ParseNumeric(text)
	if err != nil {
		return false, err
	}
	prg, err := formula.CompileCEL(expr)
	if err != nil {
		return false, err
	}
	ids := make(map[types.ConditionID]bool, len(matched))
	for _, m := range matched {
		id, err := strconv.ParseUint(strings.Trim(m, "{} "), 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid condition ID %q", m)
		}
		ids[types.ConditionID(id)] = true
	}
	return prg.Eval(ctx, ids)
}
