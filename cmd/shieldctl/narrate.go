package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/algoshield/rules"
)

// NewNarrateCmd returns the narrate subcommand
func NewNarrateCmd() *cobra.Command {
	var rulesPath string

	cmd := &cobra.Command{
		Use:   "narrate",
		Short: "Describe every rule in a file, one bullet per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := loadRules(rulesPath)
			if err != nil {
				return err
			}

			engine := rules.NewEngine()
			engine.AddRules(rs)

			_, err = fmt.Fprintln(cmd.OutOrStdout(), engine.NarrateRules())
			return err
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "Rule file (JSON or YAML list)")
	cmd.MarkFlagRequired("rules")

	return cmd
}

// NewPresetsCmd returns the presets subcommand
func NewPresetsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Print the built-in preset rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			codec, err := rules.CodecFor(format)
			if err != nil {
				return err
			}
			data, err := codec.EncodeRules(rules.DefaultPresets())
			if err != nil {
				return err
			}
			return writeLine(cmd, data)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Output format, one of: json, yaml")
	err := cmd.RegisterFlagCompletionFunc("format",
		cobra.FixedCompletions([]string{"json", "yaml"}, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	return cmd
}
