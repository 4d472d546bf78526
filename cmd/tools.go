package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jmorganca/headliner/chart"
	"github.com/jmorganca/headliner/checkpoint"
	"github.com/jmorganca/headliner/config"
	"github.com/jmorganca/headliner/dataset"
	"github.com/jmorganca/headliner/evaluate"
	"github.com/jmorganca/headliner/format"
	"github.com/jmorganca/headliner/metrics"
	"github.com/jmorganca/headliner/model"
	"github.com/jmorganca/headliner/vocab"
)

func PrepareHandler(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fraction, err := cmd.Flags().GetFloat64("test-fraction")
	if err != nil {
		return err
	}
	if fraction <= 0 || fraction >= 1 {
		return fmt.Errorf("test fraction must be in (0, 1), got %v", fraction)
	}

	ctx := cmd.Context()
	if err := dataset.SplitCSV(ctx, args[0], c, fraction); err != nil {
		return err
	}

	files, err := dataset.Prepare(ctx, c)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "prepared %s (%d tokens) and %s (%d tokens)\n",
		c.SourceVocabPath(), files.SourceVocab.Size(), c.TargetVocabPath(), files.TargetVocab.Size())
	return nil
}

func EvaluateHandler(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flag := func(name, def string) string {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			return v
		}
		return def
	}

	predicted := flag("predicted", c.Output)
	truth := flag("true", c.EvalDec)
	articles := flag("articles", c.TestEnc)
	if predicted == "" || truth == "" {
		return fmt.Errorf("predicted and true headline files are required")
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return err
	}

	report, err := evaluate.Evaluate(predicted, truth, articles, limit)
	if err != nil {
		return err
	}

	path := flag("report", "BLEU.txt")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := report.WriteRanked(f, top); err != nil {
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	report.WriteSummary(cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "Summary Results: %s!\n", path)
	return nil
}

// readCheckpoint reads the checkpoint named in args or else the latest one
// in the working directory.
func readCheckpoint(c *config.Config, args []string) (string, *checkpoint.Checkpoint, error) {
	var path string
	if len(args) > 0 {
		path = args[0]
	} else {
		e, ok, err := checkpoint.Latest(c.WorkingDirectory)
		if err != nil {
			return "", nil, err
		} else if !ok {
			return "", nil, fmt.Errorf("no checkpoints in %s", c.WorkingDirectory)
		}
		path = e.Path
	}

	ckpt, err := checkpoint.Read(path)
	if err != nil {
		return "", nil, err
	}

	return path, ckpt, nil
}

func PlotHandler(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	_, ckpt, err := readCheckpoint(c, args)
	if err != nil {
		return err
	}

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if output == "" {
		output = filepath.Join(c.WorkingDirectory, "seq2seq-history.png")
	}

	p, err := chart.History("seq2seq", ckpt.State.Losses, c.StepsPerCheckpoint)
	if err != nil {
		return err
	}

	if output == "-" {
		return chart.WritePNG(p, cmd.OutOrStdout())
	}

	if err := chart.Save(p, output); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

func InspectHandler(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path, ckpt, err := readCheckpoint(c, args)
	if err != nil {
		return err
	}

	var params uint64
	for _, p := range ckpt.Params {
		params += uint64(p.Rows * p.Cols)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	lastLoss, perplexity := "-", "-"
	if n := len(ckpt.State.Losses); n > 0 {
		loss := ckpt.State.Losses[n-1]
		lastLoss = strconv.FormatFloat(loss, 'f', 4, 64)
		perplexity = format.Perplexity(model.Perplexity(loss))
	}

	data := [][]string{
		{"checkpoint", path},
		{"size", format.HumanBytes(info.Size())},
		{"run", ckpt.State.RunID},
		{"step", strconv.Itoa(ckpt.State.Step)},
		{"learning rate", strconv.FormatFloat(ckpt.State.LearningRate, 'g', -1, 64)},
		{"buckets", ckpt.State.Buckets},
		{"parameters", format.HumanNumber(params)},
		{"history", strconv.Itoa(len(ckpt.State.Losses))},
		{"loss", lastLoss},
		{"perplexity", perplexity},
	}

	for _, v := range []struct{ name, path string }{
		{"source vocabulary", c.SourceVocabPath()},
		{"target vocabulary", c.TargetVocabPath()},
	} {
		size := "missing"
		if voc, err := vocab.Load(v.path); err == nil {
			size = strconv.Itoa(voc.Size())
		}
		data = append(data, []string{v.name, size})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

func HistoryHandler(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := metrics.Path(c.WorkingDirectory)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no training history in %s: %w", c.WorkingDirectory, err)
	}

	ctx := cmd.Context()
	store, err := metrics.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")

	if len(args) == 0 {
		runs, err := store.Runs(ctx)
		if err != nil {
			return err
		}

		table.SetHeader([]string{"RUN", "STEPS", "CHECKPOINTS", "BEST PERPLEXITY", "LAST PERPLEXITY", "UPDATED"})
		for _, r := range runs {
			table.Append([]string{
				r.ID,
				fmt.Sprintf("%d-%d", r.FirstStep, r.LastStep),
				strconv.Itoa(r.Checkpoints),
				format.Perplexity(model.Perplexity(r.BestLoss)),
				format.Perplexity(model.Perplexity(r.LastLoss)),
				format.HumanTime(r.Updated, "Never"),
			})
		}
		table.Render()
		return nil
	}

	checkpoints, err := store.Checkpoints(ctx, args[0])
	if err != nil {
		return err
	} else if len(checkpoints) == 0 {
		return fmt.Errorf("run %q not found", args[0])
	}

	table.SetHeader([]string{"STEP", "LEARNING RATE", "STEP TIME", "PERPLEXITY", "EVAL PERPLEXITY"})
	for _, ckpt := range checkpoints {
		evals, err := store.Evals(ctx, ckpt.Run, ckpt.Step)
		if err != nil {
			return err
		}

		perplexities := make([]string, len(evals))
		for i, e := range evals {
			perplexities[i] = fmt.Sprintf("%d:%s", e.Bucket, format.Perplexity(model.Perplexity(e.Loss)))
		}

		table.Append([]string{
			strconv.Itoa(ckpt.Step),
			strconv.FormatFloat(ckpt.LearningRate, 'g', 4, 64),
			format.StepTime(ckpt.StepTime),
			format.Perplexity(model.Perplexity(ckpt.Loss)),
			strings.Join(perplexities, " "),
		})
	}
	table.Render()
	return nil
}
