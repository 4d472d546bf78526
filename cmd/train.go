package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmorganca/headliner/chart"
	"github.com/jmorganca/headliner/config"
	"github.com/jmorganca/headliner/envconfig"
	"github.com/jmorganca/headliner/progress"
	"github.com/jmorganca/headliner/runner"
	"github.com/jmorganca/headliner/train"
)

func TrainHandler(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := c.Require(config.ModeTrain); err != nil {
		return err
	}

	return runTrain(cmd, c)
}

func runTrain(cmd *cobra.Command, c *config.Config) error {
	ctx := cmd.Context()
	t, err := train.New(ctx, c)
	if stopped(ctx, err) {
		return nil
	} else if err != nil {
		return err
	}
	defer t.Close()

	err = t.Run(ctx)
	if !stopped(ctx, err) {
		return err
	}

	if cmd.Flags().Lookup("plot") == nil {
		return nil
	}

	path, err := cmd.Flags().GetString("plot")
	if err != nil || path == "" {
		return err
	}

	p, err := chart.History("seq2seq", t.History(), c.StepsPerCheckpoint)
	if err != nil {
		slog.Warn("nothing to plot", "error", err)
		return nil
	}

	return chart.Save(p, path)
}

func TestHandler(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := c.Require(config.ModeTest); err != nil {
		return err
	}

	return runTest(cmd, c)
}

// countLines returns the number of lines in the file at path.
func countLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var n int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

func runTest(cmd *cobra.Command, c *config.Config) error {
	var p *progress.Progress
	if runner.IsTerminal(os.Stderr) {
		p = progress.NewProgress(os.Stderr)
		defer p.StopAndClear()
	}

	var spinner *progress.Spinner
	if p != nil {
		spinner = progress.NewSpinner("loading model")
		p.Add(spinner)
	}

	d, err := runner.Load(c)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	var fn func(int)
	if p != nil {
		total, err := countLines(c.TestEnc)
		if err != nil {
			return err
		}

		bar := progress.NewBar("decoding", "lines", total)
		p.Add(bar)
		fn = func(n int) { bar.Set(int64(n)) }
	}

	in, err := os.Open(c.TestEnc)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(c.Output), 0o755); err != nil {
		return err
	}

	out, err := os.Create(c.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	ctx := cmd.Context()
	if _, err := d.DecodeFileFunc(ctx, in, out, fn); stopped(ctx, err) {
		return nil
	} else if err != nil {
		return err
	}

	if err := out.Close(); err != nil {
		return err
	}

	if p != nil {
		p.StopAndClear()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Finished decoding and stored predicted results in %s!\n", c.Output)
	return nil
}

func InteractiveHandler(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	return runInteractive(cmd, c)
}

func runInteractive(cmd *cobra.Command, c *config.Config) error {
	d, err := runner.Load(c)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if !envconfig.NoPrompt && runner.IsTerminal(os.Stdin) {
		t, err := runner.NewTerminal(os.Stdin, cmd.OutOrStdout(), runner.Prompt)
		if err != nil {
			return err
		}
		defer t.Close()

		err = d.Interactive(ctx, t, t)
		if stopped(ctx, err) {
			return nil
		}
		return err
	}

	prompt := runner.Prompt
	if envconfig.NoPrompt {
		prompt = ""
	}

	err = d.Interactive(ctx, runner.NewPromptReader(cmd.InOrStdin(), cmd.OutOrStdout(), prompt), cmd.OutOrStdout())
	if stopped(ctx, err) {
		return nil
	}
	return err
}
