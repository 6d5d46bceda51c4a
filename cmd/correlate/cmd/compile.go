package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/solatis/correlate/internal/correlation"
	"github.com/solatis/correlate/internal/types"
)

var compileCmd = &cobra.Command{
	Use:   "compile -f rules.yaml",
	Short: "Validate and compile rule definitions without a database",
	Long: `compile checks rule definitions from a YAML or JSON file and prints the
normalized letter formula, the stored numeric formula with provisional
condition IDs and the CEL form of every rule. Host groups and stored names
are not checked.

The file holds one rule, a list of rules, or a mapping with a
"correlations" list.`,
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().StringP("file", "f", "", "rule definition file, - for stdin")
	compileCmd.MarkFlagRequired("file")
}

type compiledRule struct {
	Name       string                `yaml:"name"`
	EvalType   string                `yaml:"evaltype"`
	Formula    string                `yaml:"formula"`
	Numeric    string                `yaml:"numeric"`
	CEL        string                `yaml:"cel"`
	Conditions []types.ConditionView `yaml:"conditions"`
}

func runCompile(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	rules, err := loadRuleFile(r)
	if err != nil {
		return err
	}
	compiled, err := correlation.Compile(cmd.Context(), rules)
	if err != nil {
		return err
	}
	return writeCompiled(cmd.OutOrStdout(), compiled)
}

// loadRuleFile decodes rule definitions. YAML is a superset of JSON, so one
// decoder serves both.
func loadRuleFile(r io.Reader) ([]types.RuleInput, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("rule file is empty")
		}
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("rule file is empty")
	}
	root := doc.Content[0]

	var rules []types.RuleInput
	switch {
	case root.Kind == yaml.SequenceNode:
		if err := root.Decode(&rules); err != nil {
			return nil, fmt.Errorf("failed to decode rules: %w", err)
		}
	case root.Kind == yaml.MappingNode && hasKey(root, "correlations"):
		var wrapper struct {
			Correlations []types.RuleInput `yaml:"correlations"`
		}
		if err := root.Decode(&wrapper); err != nil {
			return nil, fmt.Errorf("failed to decode rules: %w", err)
		}
		rules = wrapper.Correlations
	case root.Kind == yaml.MappingNode:
		var rule types.RuleInput
		if err := root.Decode(&rule); err != nil {
			return nil, fmt.Errorf("failed to decode rule: %w", err)
		}
		rules = []types.RuleInput{rule}
	default:
		return nil, fmt.Errorf("rule file must hold a mapping or a list")
	}
	return rules, nil
}

func hasKey(m *yaml.Node, key string) bool {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return true
		}
	}
	return false
}

func writeCompiled(w io.Writer, compiled []correlation.Compiled) error {
	out := make([]compiledRule, 0, len(compiled))
	for _, c := range compiled {
		r := compiledRule{
			Name:     c.Rule.Name,
			EvalType: c.Rule.EvalType.String(),
			Formula:  c.Letters,
			Numeric:  c.Numeric,
			CEL:      c.Program.Source(),
		}
		for _, cond := range c.Conditions {
			r.Conditions = append(r.Conditions, types.ViewOf(cond))
		}
		out = append(out, r)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
