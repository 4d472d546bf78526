// Package config reads the seq2seq configuration file. The file is TOML with
// three tables, [ints], [floats] and [strings], mirroring the value types of
// its keys.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/jmorganca/headliner/bucket"
	"github.com/jmorganca/headliner/model"
	"github.com/jmorganca/headliner/types/errtypes"
)

type Mode string

const (
	ModeTrain       Mode = "train"
	ModeTest        Mode = "test"
	ModeInteractive Mode = "interactive"
)

var Modes = []Mode{ModeTrain, ModeTest, ModeInteractive}

const (
	DefaultDecayFactor = 0.5
	DefaultSeed        = 42
)

// Config is read once at startup and never modified afterwards.
type Config struct {
	Path string

	Mode             Mode
	WorkingDirectory string
	TrainEnc         string
	TrainDec         string
	EvalEnc          string
	EvalDec          string
	TestEnc          string
	Output           string
	PretrainedModel  string
	Buckets          []bucket.Bucket

	EncVocabSize       int
	DecVocabSize       int
	NumLayers          int
	HiddenUnits        int
	EmbeddingSize      int
	BatchSize          int
	StepsPerCheckpoint int
	MaxTrainDataSize   int
	MaxCheckpoints     int
	Seed               uint64

	LearningRate            float64
	LearningRateDecayFactor float64
	MaxGradientNorm         float64
}

type file struct {
	Ints    map[string]any `toml:"ints"`
	Floats  map[string]any `toml:"floats"`
	Strings map[string]any `toml:"strings"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &errtypes.LoadError{Path: path, Err: err}
	}

	c, err := Parse(string(b))
	if err != nil {
		var ce *errtypes.ConfigError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &errtypes.LoadError{Path: path, Err: err}
	}

	c.Path = path
	return c, nil
}

// Parse decodes and validates a configuration document.
func Parse(s string) (*Config, error) {
	var f file
	if _, err := toml.Decode(s, &f); err != nil {
		return nil, err
	}

	var c Config
	var err error
	ints := func(key string, dst *int, def *int) {
		if err == nil {
			err = f.int(key, dst, def)
		}
	}
	floats := func(key string, dst *float64, def *float64) {
		if err == nil {
			err = f.float(key, dst, def)
		}
	}
	strs := func(key string, dst *string, def *string) {
		if err == nil {
			err = f.string(key, dst, def)
		}
	}

	ints("enc_vocab_size", &c.EncVocabSize, nil)
	ints("dec_vocab_size", &c.DecVocabSize, nil)
	ints("num_layers", &c.NumLayers, nil)
	ints("hidden_units", &c.HiddenUnits, nil)
	ints("batch_size", &c.BatchSize, nil)
	ints("steps_per_checkpoint", &c.StepsPerCheckpoint, nil)
	ints("max_train_data_size", &c.MaxTrainDataSize, ptr(0))
	ints("max_checkpoints", &c.MaxCheckpoints, ptr(5))
	ints("embedding_size", &c.EmbeddingSize, ptr(0))

	var seed int
	ints("seed", &seed, ptr(DefaultSeed))

	floats("learning_rate", &c.LearningRate, nil)
	floats("learning_rate_decay_factor", &c.LearningRateDecayFactor, ptr(DefaultDecayFactor))
	floats("max_gradient_norm", &c.MaxGradientNorm, nil)

	var mode, buckets string
	strs("mode", &mode, nil)
	strs("working_directory", &c.WorkingDirectory, nil)
	strs("train_enc", &c.TrainEnc, ptr(""))
	strs("train_dec", &c.TrainDec, ptr(""))
	strs("eval_enc", &c.EvalEnc, ptr(""))
	strs("eval_dec", &c.EvalDec, ptr(""))
	strs("test_enc", &c.TestEnc, ptr(""))
	strs("output", &c.Output, ptr(""))
	strs("pretrained_model", &c.PretrainedModel, ptr(""))
	strs("buckets", &buckets, ptr(bucket.Format(bucket.Default)))
	if err != nil {
		return nil, err
	}

	c.Mode = Mode(mode)
	if seed < 0 {
		return nil, &errtypes.ConfigError{Key: "seed", Reason: "must not be negative"}
	}
	c.Seed = uint64(seed)

	if c.EmbeddingSize == 0 {
		c.EmbeddingSize = c.HiddenUnits
	}

	c.Buckets, err = bucket.Parse(buckets)
	if err != nil {
		return nil, &errtypes.ConfigError{Key: "buckets", Reason: err.Error()}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func ptr[T any](v T) *T {
	return &v
}

func missing(key string) error {
	return &errtypes.ConfigError{Key: key, Reason: "missing required key"}
}

func mistyped(key string, want string, v any) error {
	return &errtypes.ConfigError{Key: key, Reason: fmt.Sprintf("expected %s, got %T", want, v)}
}

func (f file) int(key string, dst, def *int) error {
	v, ok := f.Ints[key]
	if !ok {
		if def == nil {
			return missing(key)
		}
		*dst = *def
		return nil
	}

	n, ok := v.(int64)
	if !ok {
		return mistyped(key, "integer", v)
	}

	*dst = int(n)
	return nil
}

func (f file) float(key string, dst, def *float64) error {
	v, ok := f.Floats[key]
	if !ok {
		if def == nil {
			return missing(key)
		}
		*dst = *def
		return nil
	}

	switch n := v.(type) {
	case float64:
		*dst = n
	case int64:
		*dst = float64(n)
	default:
		return mistyped(key, "number", v)
	}

	return nil
}

func (f file) string(key string, dst, def *string) error {
	v, ok := f.Strings[key]
	if !ok {
		if def == nil {
			return missing(key)
		}
		*dst = *def
		return nil
	}

	s, ok := v.(string)
	if !ok {
		return mistyped(key, "string", v)
	}

	*dst = s
	return nil
}

func (c *Config) validate() error {
	if !slices.Contains(Modes, c.Mode) {
		return &errtypes.ConfigError{Key: "mode", Reason: fmt.Sprintf("must be one of %v, got %q", Modes, c.Mode)}
	}

	if c.WorkingDirectory == "" {
		return &errtypes.ConfigError{Key: "working_directory", Reason: "must not be empty"}
	}

	for _, kv := range []struct {
		key string
		n   int
		min int
	}{
		{"enc_vocab_size", c.EncVocabSize, 5},
		{"dec_vocab_size", c.DecVocabSize, 5},
		{"num_layers", c.NumLayers, 1},
		{"hidden_units", c.HiddenUnits, 1},
		{"embedding_size", c.EmbeddingSize, 1},
		{"batch_size", c.BatchSize, 1},
		{"steps_per_checkpoint", c.StepsPerCheckpoint, 1},
		{"max_train_data_size", c.MaxTrainDataSize, 0},
		{"max_checkpoints", c.MaxCheckpoints, 1},
	} {
		if kv.n < kv.min {
			return &errtypes.ConfigError{Key: kv.key, Reason: fmt.Sprintf("must be at least %d, got %d", kv.min, kv.n)}
		}
	}

	if c.LearningRate <= 0 {
		return &errtypes.ConfigError{Key: "learning_rate", Reason: "must be positive"}
	}

	if c.LearningRateDecayFactor <= 0 || c.LearningRateDecayFactor > 1 {
		return &errtypes.ConfigError{Key: "learning_rate_decay_factor", Reason: "must be in (0, 1]"}
	}

	if c.MaxGradientNorm <= 0 {
		return &errtypes.ConfigError{Key: "max_gradient_norm", Reason: "must be positive"}
	}

	return c.Require(c.Mode)
}

// Require checks that the file keys needed by mode are set.
func (c *Config) Require(mode Mode) error {
	type key struct{ name, value string }
	var keys []key
	switch mode {
	case ModeTrain:
		keys = []key{{"train_enc", c.TrainEnc}, {"train_dec", c.TrainDec}, {"eval_enc", c.EvalEnc}, {"eval_dec", c.EvalDec}}
	case ModeTest:
		keys = []key{{"test_enc", c.TestEnc}, {"output", c.Output}}
	}

	for _, k := range keys {
		if k.value == "" {
			return &errtypes.ConfigError{Key: k.name, Reason: fmt.Sprintf("required in %s mode", mode)}
		}
	}

	return nil
}

// WithSeed returns a copy of c using seed.
func (c *Config) WithSeed(seed uint64) *Config {
	cp := *c
	cp.Seed = seed
	return &cp
}

// SourceVocabPath is the encoder vocabulary file in the working directory.
func (c *Config) SourceVocabPath() string {
	return filepath.Join(c.WorkingDirectory, fmt.Sprintf("vocab%d_enc.txt", c.EncVocabSize))
}

// TargetVocabPath is the decoder vocabulary file in the working directory.
func (c *Config) TargetVocabPath() string {
	return filepath.Join(c.WorkingDirectory, fmt.Sprintf("vocab%d_dec.txt", c.DecVocabSize))
}

// ModelOptions returns the model hyperparameters. feedPrevious is set for
// decoding.
func (c *Config) ModelOptions(feedPrevious bool) model.Options {
	return model.Options{
		SourceVocabSize:         c.EncVocabSize,
		TargetVocabSize:         c.DecVocabSize,
		Buckets:                 c.Buckets,
		HiddenUnits:             c.HiddenUnits,
		EmbeddingSize:           c.EmbeddingSize,
		NumLayers:               c.NumLayers,
		MaxGradientNorm:         c.MaxGradientNorm,
		LearningRate:            c.LearningRate,
		LearningRateDecayFactor: c.LearningRateDecayFactor,
		FeedPrevious:            feedPrevious,
		Seed:                    c.Seed,
	}
}
