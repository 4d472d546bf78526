// Package train runs the training loop: sample a bucket, take one step,
// and every few steps checkpoint the model and evaluate it on the dev set.
package train

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/jmorganca/headliner/bucket"
	"github.com/jmorganca/headliner/checkpoint"
	"github.com/jmorganca/headliner/config"
	"github.com/jmorganca/headliner/dataset"
	"github.com/jmorganca/headliner/format"
	"github.com/jmorganca/headliner/logutil"
	"github.com/jmorganca/headliner/metrics"
	"github.com/jmorganca/headliner/model"
	"github.com/jmorganca/headliner/sample"
	"github.com/jmorganca/headliner/types/errtypes"
)

type State int

const (
	Initializing State = iota
	Stepping
	Checkpointing
	Evaluating
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Stepping:
		return "stepping"
	case Checkpointing:
		return "checkpointing"
	case Evaluating:
		return "evaluating"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// plateauWindow is the number of recent checkpoint losses the current loss
// is compared against before decaying the learning rate.
const plateauWindow = 3

type Trainer struct {
	config *config.Config
	model  *model.Seq2Seq

	train   *bucket.Dataset
	dev     *bucket.Dataset
	sampler *sample.Sampler
	evalRng *rand.Rand

	runID   string
	history []float64
	state   State

	// steps taken by this process, which set the checkpoint cadence
	stepsSinceStart int

	// accumulated since the last checkpoint
	stepTime time.Duration
	loss     float64

	// metrics is nil when the database could not be opened
	metrics *metrics.Store

	onCheckpoint func()
}

// New prepares the data files, creates or restores the model and reads the
// training and dev sets.
func New(ctx context.Context, c *config.Config) (*Trainer, error) {
	slog.Info("preparing data", "working_directory", c.WorkingDirectory)
	files, err := dataset.Prepare(ctx, c)
	if err != nil {
		return nil, err
	}

	if files.SourceVocab.Size() > c.EncVocabSize {
		return nil, &errtypes.ConfigError{Key: "enc_vocab_size", Reason: fmt.Sprintf("vocabulary %s has %d tokens", c.SourceVocabPath(), files.SourceVocab.Size())}
	}
	if files.TargetVocab.Size() > c.DecVocabSize {
		return nil, &errtypes.ConfigError{Key: "dec_vocab_size", Reason: fmt.Sprintf("vocabulary %s has %d tokens", c.TargetVocabPath(), files.TargetVocab.Size())}
	}

	slog.Info("creating model", "layers", c.NumLayers, "hidden_units", c.HiddenUnits)
	m, err := model.New(c.ModelOptions(false))
	if err != nil {
		return nil, err
	}

	state, _, err := checkpoint.Resume(c.WorkingDirectory, c.PretrainedModel, m)
	if err != nil {
		return nil, err
	}

	dev, err := bucket.Read(ctx, files.EvalEnc, files.EvalDec, c.Buckets, 0)
	if err != nil {
		return nil, err
	}

	train, err := bucket.Read(ctx, files.TrainEnc, files.TrainDec, c.Buckets, c.MaxTrainDataSize)
	if err != nil {
		return nil, err
	}

	t, err := NewWithData(c, m, train, dev, state)
	if err != nil {
		return nil, err
	}

	if t.metrics, err = metrics.Open(ctx, metrics.Path(c.WorkingDirectory)); err != nil {
		slog.Warn("metrics will not be recorded", "error", err)
	}

	return t, nil
}

// Close releases the metrics database.
func (t *Trainer) Close() error {
	if t.metrics == nil {
		return nil
	}
	return t.metrics.Close()
}

// NewWithData creates a trainer over datasets that are already loaded.
// state is nil for a fresh run.
func NewWithData(c *config.Config, m *model.Seq2Seq, train, dev *bucket.Dataset, state *checkpoint.State) (*Trainer, error) {
	if train.Len() == 0 {
		return nil, fmt.Errorf("no training examples fit buckets %s", bucket.Format(c.Buckets))
	}

	t := &Trainer{
		config:  c,
		model:   m,
		train:   train,
		dev:     dev,
		sampler: sample.NewSampler(train, c.Seed),
		evalRng: rand.New(rand.NewPCG(c.Seed, c.Seed+1)),
		runID:   uuid.NewString(),
	}

	if state != nil {
		if state.RunID != "" {
			t.runID = state.RunID
		}
		t.history = slices.Clone(state.Losses)
	}

	slog.Info("training buckets", "run", t.runID, "sizes", train.Sizes(), "scale", t.sampler.Scale())
	return t, nil
}

// History returns the loss recorded at every checkpoint.
func (t *Trainer) History() []float64 {
	return slices.Clone(t.history)
}

func (t *Trainer) State() State {
	return t.state
}

func (t *Trainer) setState(s State) {
	if t.state != s {
		logutil.Trace("training state", "from", t.state, "to", s, "step", t.model.GlobalStep())
		t.state = s
	}
}

// Run trains until ctx is cancelled or a step or checkpoint fails. It
// returns ctx.Err() on cancellation.
func (t *Trainer) Run(ctx context.Context) error {
	slog.Info("starting training", "run", t.runID, "step", t.model.GlobalStep(), "learning_rate", t.model.LearningRate())
	steps := t.config.StepsPerCheckpoint
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("training stopped", "step", t.model.GlobalStep())
			return err
		}

		t.setState(Stepping)
		start := time.Now()
		b := t.sampler.Next(t.config.BatchSize)
		result, err := t.model.Step(b, b.Bucket, false)
		if err != nil {
			return fmt.Errorf("step %d: %w", t.model.GlobalStep(), err)
		}

		t.stepTime += time.Since(start) / time.Duration(steps)
		t.loss += result.Loss / float64(steps)
		logutil.Trace("step", "step", t.model.GlobalStep(), "bucket", b.Bucket, "loss", result.Loss, "grad_norm", result.GradNorm)

		t.stepsSinceStart++
		if t.stepsSinceStart%steps == 0 {
			if err := t.checkpoint(ctx); err != nil {
				return err
			}

			if err := t.evaluate(ctx); err != nil {
				return err
			}

			if t.onCheckpoint != nil {
				t.onCheckpoint()
			}
		}
	}
}

func (t *Trainer) checkpoint(ctx context.Context) error {
	t.setState(Checkpointing)
	slog.Info("checkpoint",
		"global_step", t.model.GlobalStep(),
		"learning_rate", fmt.Sprintf("%.4f", t.model.LearningRate()),
		"step_time", format.StepTime(t.stepTime),
		"perplexity", format.Perplexity(model.Perplexity(t.loss)),
	)

	if n := len(t.history); n > plateauWindow-1 && t.loss > slices.Max(t.history[n-plateauWindow:]) {
		t.model.DecayLearningRate()
		slog.Info("decayed learning rate", "learning_rate", t.model.LearningRate())
	}
	t.history = append(t.history, t.loss)

	path, err := checkpoint.Save(t.config.WorkingDirectory, t.model, checkpoint.State{
		RunID:        t.runID,
		Step:         t.model.GlobalStep(),
		LearningRate: t.model.LearningRate(),
		Losses:       t.history,
		Buckets:      bucket.Format(t.config.Buckets),
	}, t.config.MaxCheckpoints)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	slog.Debug("saved checkpoint", "path", path)
	if t.metrics != nil {
		if err := t.metrics.RecordCheckpoint(ctx, metrics.Checkpoint{
			Run:          t.runID,
			Step:         t.model.GlobalStep(),
			LearningRate: t.model.LearningRate(),
			Loss:         t.loss,
			StepTime:     t.stepTime,
		}); err != nil {
			slog.Warn("failed to record checkpoint metrics", "error", err)
		}
	}

	t.stepTime, t.loss = 0, 0
	return nil
}

func (t *Trainer) evaluate(ctx context.Context) error {
	t.setState(Evaluating)
	for i, examples := range t.dev.Examples {
		if len(examples) == 0 {
			slog.Info("eval: empty bucket", "bucket", i)
			continue
		}

		b := sample.MakeBatch(examples, t.dev.Buckets[i], i, t.config.BatchSize, t.evalRng)
		result, err := t.model.Step(b, i, true)
		if err != nil {
			return fmt.Errorf("eval bucket %d: %w", i, err)
		}

		slog.Info("eval", "bucket", i, "perplexity", format.Perplexity(model.Perplexity(result.Loss)))
		if t.metrics != nil {
			if err := t.metrics.RecordEval(ctx, metrics.Eval{
				Run:    t.runID,
				Step:   t.model.GlobalStep(),
				Bucket: i,
				Loss:   result.Loss,
			}); err != nil {
				slog.Warn("failed to record eval metrics", "bucket", i, "error", err)
			}
		}
	}

	return nil
}
