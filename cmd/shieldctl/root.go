package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/algoshield/internal/logger"
	"github.com/liamcoop/algoshield/matcher"
	"github.com/liamcoop/algoshield/rules"
)

const (
	cmdName = "shieldctl"
	cmdDesc = `Offline tool for countermeasure rule files.`

	cmdExamples = `
	# Evaluate a context against a rule file.
	shieldctl evaluate --rules rules.yaml --context ctx.json --seed 42

	# Print the rules as the extension narrates them.
	shieldctl narrate --rules rules.yaml

	# Write the default presets as YAML.
	shieldctl presets --format yaml > presets.yaml
`
)

// RootArgs holds the persistent flags
type RootArgs struct {
	LogLevel string
	Matcher  string
}

// AddFlags registers the persistent flags on cmd
func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&ra.LogLevel, "log-level", "warn", "Log level, one of: trace, debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&ra.Matcher, "matcher", "cel", "Matches operator backend, one of: cel, none")

	err := cmd.RegisterFlagCompletionFunc("matcher",
		cobra.FixedCompletions([]string{"cel", "none"}, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}
}

// NewRootCmd builds the shieldctl command tree
func NewRootCmd() *cobra.Command {
	args := &RootArgs{}

	cmd := &cobra.Command{
		Use:               cmdName,
		Short:             cmdDesc,
		Example:           cmdExamples,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging(args),
	}
	args.AddFlags(cmd)

	cmd.AddCommand(
		NewEvaluateCmd(args),
		NewNarrateCmd(),
		NewPresetsCmd(),
		NewValidateCmd(args),
	)
	return cmd
}

func setupLogging(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		level, err := logger.ParseLevel(ra.LogLevel)
		if err != nil {
			return err
		}
		return logger.Setup(cmd.Context(), logger.Options{
			Level:  level,
			Output: cmd.ErrOrStderr(),
		})
	}
}

// newMatcher returns the configured text matcher, or nil for "none".
func newMatcher(name string) (*matcher.CELMatcher, error) {
	switch name {
	case "cel":
		return matcher.NewCELMatcher(matcher.DefaultCacheSize, slog.Default())
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown matcher %q (use cel or none)", name)
	}
}

// loadRules reads a JSON or YAML rule list, picking the codec from the
// extension.
func loadRules(path string) ([]rules.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return rules.CodecForPath(path).DecodeRules(data)
}

func loadContext(path string) (rules.Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return rules.Context{}, fmt.Errorf("failed to read context: %w", err)
	}
	return rules.CodecForPath(path).DecodeContext(data)
}

func writeLine(cmd *cobra.Command, data []byte) error {
	out := cmd.OutOrStdout()
	if _, err := out.Write(data); err != nil {
		return err
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		_, err := fmt.Fprintln(out)
		return err
	}
	return nil
}
