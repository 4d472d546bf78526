package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmorganca/headliner/config"
	"github.com/jmorganca/headliner/envconfig"
	"github.com/jmorganca/headliner/logutil"
	"github.com/jmorganca/headliner/version"
)

// loadConfig reads the configuration named by the --config flag and applies
// environment overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if envconfig.SeedSet {
		c = c.WithSeed(envconfig.Seed)
	}

	slog.Debug("loaded config", "path", path, "mode", c.Mode, "buckets", c.Buckets)
	return c, nil
}

// stopped reports whether err is the cancellation of ctx, which ends a run
// cleanly.
func stopped(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}

// RunHandler dispatches on the mode of the configuration file.
func RunHandler(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "\n>> Mode : %s\n\n", c.Mode)
	switch c.Mode {
	case config.ModeTrain:
		return runTrain(cmd, c)
	case config.ModeTest:
		return runTest(cmd, c)
	case config.ModeInteractive:
		return runInteractive(cmd, c)
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
}

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "headliner",
		Short:         "Headline summarizer",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel))
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", envconfig.ConfigFile, "Configuration file")
	rootCmd.SetVersionTemplate("headliner version {{.Version}}\n")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Train, test or decode interactively as set by the configuration mode",
		Args:  cobra.NoArgs,
		RunE:  RunHandler,
	}

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train until interrupted",
		Args:  cobra.NoArgs,
		RunE:  TrainHandler,
	}
	trainCmd.Flags().String("plot", "", "Plot the loss history to this file when training stops")

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Decode every line of the test file to the output file",
		Args:  cobra.NoArgs,
		RunE:  TestHandler,
	}

	interactiveCmd := &cobra.Command{
		Use:   "interactive",
		Short: "Decode lines read from standard input",
		Args:  cobra.NoArgs,
		RunE:  InteractiveHandler,
	}

	prepareCmd := &cobra.Command{
		Use:   "prepare CSV",
		Short: "Split a title/text CSV into training and dev files and build the vocabularies",
		Args:  cobra.ExactArgs(1),
		RunE:  PrepareHandler,
	}
	prepareCmd.Flags().Float64("test-fraction", 0.2, "Share of articles held out for evaluation")

	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score predicted headlines with unigram BLEU",
		Args:  cobra.NoArgs,
		RunE:  EvaluateHandler,
	}
	evaluateCmd.Flags().String("predicted", "", "Predicted headlines (default: configured output)")
	evaluateCmd.Flags().String("true", "", "True headlines (default: configured eval_dec)")
	evaluateCmd.Flags().String("articles", "", "Articles (default: configured test_enc)")
	evaluateCmd.Flags().Int("limit", 0, "Number of lines to score, 0 for all")
	evaluateCmd.Flags().Int("top", 100, "Number of rows in the ranked report")
	evaluateCmd.Flags().String("report", "BLEU.txt", "Ranked report file")

	plotCmd := &cobra.Command{
		Use:   "plot [CHECKPOINT]",
		Short: "Plot the loss history of a checkpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE:  PlotHandler,
	}
	plotCmd.Flags().StringP("output", "o", "", "Output file, - for PNG on stdout (default: seq2seq-history.png in the working directory)")

	inspectCmd := &cobra.Command{
		Use:   "inspect [CHECKPOINT]",
		Short: "Show checkpoint and vocabulary details",
		Args:  cobra.MaximumNArgs(1),
		RunE:  InspectHandler,
	}

	historyCmd := &cobra.Command{
		Use:   "history [RUN]",
		Short: "List recorded training runs or the checkpoints of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  HistoryHandler,
	}

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the summarize server",
		Args:    cobra.NoArgs,
		RunE:    RunServer,
	}

	summarizeCmd := &cobra.Command{
		Use:     "summarize [TEXT...]",
		Short:   "Summarize text with a running server",
		PreRunE: checkServerHeartbeat,
		RunE:    SummarizeHandler,
	}

	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["HEADLINER_CONFIG"], envVars["HEADLINER_DEBUG"]}

	for _, cmd := range []*cobra.Command{runCmd, trainCmd, testCmd, interactiveCmd, prepareCmd, evaluateCmd, plotCmd, inspectCmd, historyCmd, serveCmd, summarizeCmd} {
		switch cmd {
		case trainCmd, runCmd:
			appendEnvDocs(cmd, append(envs, envVars["HEADLINER_SEED"]))
		case interactiveCmd:
			appendEnvDocs(cmd, append(envs, envVars["HEADLINER_NOPROMPT"]))
		case serveCmd, summarizeCmd:
			appendEnvDocs(cmd, append(envs, envVars["HEADLINER_HOST"]))
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(
		runCmd,
		trainCmd,
		testCmd,
		interactiveCmd,
		prepareCmd,
		evaluateCmd,
		plotCmd,
		inspectCmd,
		historyCmd,
		serveCmd,
		summarizeCmd,
	)

	return rootCmd
}
