// Package runner decodes headlines from a trained model one input at a time.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmorganca/headliner/bucket"
	"github.com/jmorganca/headliner/checkpoint"
	"github.com/jmorganca/headliner/config"
	"github.com/jmorganca/headliner/model"
	"github.com/jmorganca/headliner/sample"
	"github.com/jmorganca/headliner/vocab"
)

// Summary is the decoded headline of one input.
type Summary struct {
	Text   string
	IDs    []int32
	Bucket int
}

type Decoder struct {
	model  *model.Seq2Seq
	source *vocab.Vocabulary
	target *vocab.Vocabulary
}

func NewDecoder(m *model.Seq2Seq, source, target *vocab.Vocabulary) *Decoder {
	return &Decoder{model: m, source: source, target: target}
}

// Load reads the vocabularies of c and restores the decoding model from the
// latest checkpoint or the configured pretrained model.
func Load(c *config.Config) (*Decoder, error) {
	source, err := vocab.Load(c.SourceVocabPath())
	if err != nil {
		return nil, err
	}

	target, err := vocab.Load(c.TargetVocabPath())
	if err != nil {
		return nil, err
	}

	m, err := model.New(c.ModelOptions(true))
	if err != nil {
		return nil, err
	}

	if _, ok, err := checkpoint.Resume(c.WorkingDirectory, c.PretrainedModel, m); err != nil {
		return nil, err
	} else if !ok {
		slog.Warn("decoding with untrained parameters", "working_directory", c.WorkingDirectory)
	}

	return NewDecoder(m, source, target), nil
}

func (d *Decoder) Model() *model.Seq2Seq {
	return d.model
}

// ChooseBucket returns the first bucket whose source bound exceeds n, or
// the largest bucket when none does.
func ChooseBucket(buckets []bucket.Bucket, n int) int {
	for i, b := range buckets {
		if b.Source > n {
			return i
		}
	}
	return len(buckets) - 1
}

// Summarize greedily decodes text. Inputs longer than the largest bucket
// are truncated to its source bound.
func (d *Decoder) Summarize(text string) (*Summary, error) {
	ids := d.source.Encode(text)
	buckets := d.model.Buckets()
	i := ChooseBucket(buckets, len(ids))
	if len(ids) >= buckets[i].Source {
		slog.Debug("truncating input", "tokens", len(ids), "bucket", buckets[i])
	}

	result, err := d.model.Step(sample.Single(ids, buckets[i], i), i, true)
	if err != nil {
		return nil, err
	}

	outputs := sample.GreedySequence(result.Outputs, 0)
	s, err := d.target.Decode(outputs)
	if err != nil {
		return nil, err
	}

	return &Summary{Text: s, IDs: outputs, Bucket: i}, nil
}

// Decode returns the headline of text.
func (d *Decoder) Decode(text string) (string, error) {
	s, err := d.Summarize(text)
	if err != nil {
		return "", err
	}
	return s.Text, nil
}

// DecodeFile writes one headline line to w for every line of r, in order.
// A line that fails to decode produces an empty line. It returns the number
// of lines written.
func (d *Decoder) DecodeFile(ctx context.Context, r io.Reader, w io.Writer) (int, error) {
	return d.DecodeFileFunc(ctx, r, w, nil)
}

// DecodeFileFunc is DecodeFile calling fn, when not nil, with the number of
// lines written so far after each line.
func (d *Decoder) DecodeFileFunc(ctx context.Context, r io.Reader, w io.Writer, fn func(int)) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	bw := bufio.NewWriter(w)

	var n, failed int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		s, err := d.Decode(scanner.Text())
		if err != nil {
			failed++
			slog.Warn("failed to decode line", "line", n+1, "error", err)
			s = ""
		}

		if _, err := fmt.Fprintln(bw, s); err != nil {
			return n, err
		}

		n++
		if fn != nil {
			fn(n)
		}
		if n%100 == 0 {
			slog.Info("predicted data line", "line", n)
		}
	}

	if err := scanner.Err(); err != nil {
		return n, err
	}

	if err := bw.Flush(); err != nil {
		return n, err
	}

	slog.Info("finished decoding", "lines", n, "failed", failed)
	return n, nil
}

func (d *Decoder) SourceVocabulary() *vocab.Vocabulary {
	return d.source
}

func (d *Decoder) TargetVocabulary() *vocab.Vocabulary {
	return d.target
}
