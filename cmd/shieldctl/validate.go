package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/algoshield/catalog"
)

// NewValidateCmd returns the validate subcommand
func NewValidateCmd(root *RootArgs) *cobra.Command {
	var rulesPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a rule file against the catalog's admission rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := loadRules(rulesPath)
			if err != nil {
				return err
			}

			var opts []catalog.Option
			m, err := newMatcher(root.Matcher)
			if err != nil {
				return err
			}
			if m != nil {
				opts = append(opts, catalog.WithPatternCompiler(m))
			}

			// Loading into a scratch catalog applies validation and id
			// uniqueness in one pass.
			cat := catalog.New(catalog.NewInMemoryRuleStore(), opts...)
			var errs []error
			for i, r := range rs {
				if _, err := cat.Add(r); err != nil {
					errs = append(errs, fmt.Errorf("rule %d (%s): %w", i, r.ID, err))
				}
			}
			if len(errs) > 0 {
				for _, err := range errs {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
				return errors.Join(errs...)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d rules OK\n", len(rs))
			return err
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "Rule file (JSON or YAML list)")
	cmd.MarkFlagRequired("rules")

	return cmd
}
