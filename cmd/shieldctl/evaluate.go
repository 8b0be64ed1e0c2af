package main

import (
	"github.com/spf13/cobra"

	"github.com/liamcoop/algoshield/rules"
)

// EvaluateArgs holds the evaluate flags
type EvaluateArgs struct {
	*RootArgs
	RulesPath   string
	ContextPath string
	Format      string
	Seed        uint64
}

// NewEvaluateCmd returns the evaluate subcommand
func NewEvaluateCmd(root *RootArgs) *cobra.Command {
	ea := &EvaluateArgs{RootArgs: root}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a context against a rule file and print the actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd, ea)
		},
	}

	cmd.Flags().StringVar(&ea.RulesPath, "rules", "", "Rule file (JSON or YAML list)")
	cmd.Flags().StringVar(&ea.ContextPath, "context", "", "Context file (JSON or YAML)")
	cmd.Flags().StringVar(&ea.Format, "format", "json", "Output format, one of: json, yaml")
	cmd.Flags().Uint64Var(&ea.Seed, "seed", 0, "Seed for probability draws; 0 draws from the global generator")
	cmd.MarkFlagRequired("rules")
	cmd.MarkFlagRequired("context")

	return cmd
}

func runEvaluate(cmd *cobra.Command, ea *EvaluateArgs) error {
	codec, err := rules.CodecFor(ea.Format)
	if err != nil {
		return err
	}

	rs, err := loadRules(ea.RulesPath)
	if err != nil {
		return err
	}
	ctx, err := loadContext(ea.ContextPath)
	if err != nil {
		return err
	}

	opts := []rules.Option{rules.WithCodec(codec)}
	if ea.Seed != 0 {
		opts = append(opts, rules.WithRandomSource(rules.NewSeededRandom(ea.Seed)))
	}
	m, err := newMatcher(ea.Matcher)
	if err != nil {
		return err
	}
	if m != nil {
		opts = append(opts, rules.WithTextMatcher(m))
	}

	engine := rules.NewEngine(opts...)
	engine.AddRules(rs)

	data, err := codec.EncodeActions(engine.Evaluate(ctx))
	if err != nil {
		return err
	}
	return writeLine(cmd, data)
}
