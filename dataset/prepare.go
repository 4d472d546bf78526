// Package dataset turns raw article/headline text into the vocabulary and id
// files read by training and decoding.
package dataset

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmorganca/headliner/bucket"
	"github.com/jmorganca/headliner/config"
	"github.com/jmorganca/headliner/types/errtypes"
	"github.com/jmorganca/headliner/vocab"
)

// Files names the id files and vocabularies of a prepared working
// directory.
type Files struct {
	TrainEnc string
	TrainDec string
	EvalEnc  string
	EvalDec  string

	SourceVocab *vocab.Vocabulary
	TargetVocab *vocab.Vocabulary
}

// IDsPath is the id file written for the text file at path.
func IDsPath(path string, vocabSize int) string {
	return fmt.Sprintf("%s.ids%d", path, vocabSize)
}

// Prepare creates the vocabularies from the training text if they are
// missing and converts every training and dev text file to ids. Existing
// files are reused.
func Prepare(ctx context.Context, c *config.Config) (*Files, error) {
	if err := os.MkdirAll(c.WorkingDirectory, 0o755); err != nil {
		return nil, err
	}

	source, err := Vocabulary(ctx, c.SourceVocabPath(), c.TrainEnc, c.EncVocabSize)
	if err != nil {
		return nil, err
	}

	target, err := Vocabulary(ctx, c.TargetVocabPath(), c.TrainDec, c.DecVocabSize)
	if err != nil {
		return nil, err
	}

	files := Files{
		TrainEnc:    IDsPath(c.TrainEnc, c.EncVocabSize),
		TrainDec:    IDsPath(c.TrainDec, c.DecVocabSize),
		EvalEnc:     IDsPath(c.EvalEnc, c.EncVocabSize),
		EvalDec:     IDsPath(c.EvalDec, c.DecVocabSize),
		SourceVocab: source,
		TargetVocab: target,
	}

	for _, conv := range []struct {
		text, ids string
		v         *vocab.Vocabulary
	}{
		{c.TrainEnc, files.TrainEnc, source},
		{c.TrainDec, files.TrainDec, target},
		{c.EvalEnc, files.EvalEnc, source},
		{c.EvalDec, files.EvalDec, target},
	} {
		if err := ToIDs(ctx, conv.text, conv.ids, conv.v); err != nil {
			return nil, err
		}
	}

	return &files, nil
}

// Vocabulary loads the vocabulary at path, building it from the text file
// at dataPath first if it does not exist. size bounds the vocabulary
// including the reserved tokens.
func Vocabulary(ctx context.Context, path, dataPath string, size int) (*vocab.Vocabulary, error) {
	if _, err := os.Stat(path); err == nil {
		return vocab.Load(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, &errtypes.LoadError{Path: path, Err: err}
	}

	slog.Info("creating vocabulary", "path", path, "data", dataPath, "size", size)
	c := vocab.NewCounter()
	if err := eachLine(ctx, dataPath, func(n int, line string) error {
		c.Add(line)
		if n%100000 == 0 {
			slog.Debug("counting tokens", "line", n)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	v := c.Vocabulary(size - len(vocab.Reserved))
	if err := v.Save(path); err != nil {
		return nil, err
	}

	return v, nil
}

// ToIDs writes the id sequence of every line of the text file at dataPath to
// idsPath unless idsPath already exists.
func ToIDs(ctx context.Context, dataPath, idsPath string, v *vocab.Vocabulary) error {
	if _, err := os.Stat(idsPath); err == nil {
		return nil
	}

	slog.Info("tokenizing data", "path", dataPath)
	return writeFile(idsPath, func(w *bufio.Writer) error {
		return eachLine(ctx, dataPath, func(n int, line string) error {
			if n%100000 == 0 {
				slog.Debug("tokenizing line", "line", n)
			}
			_, err := fmt.Fprintln(w, bucket.FormatIDs(v.Encode(line)))
			return err
		})
	})
}

// eachLine calls fn with the 1-based number and content of every line of
// the file at path.
func eachLine(ctx context.Context, path string, fn func(int, string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return &errtypes.LoadError{Path: path, Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var n int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		n++
		if err := fn(n, scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return &errtypes.LoadError{Path: path, Err: err}
	}

	return nil
}

// writeFile writes through a temporary file that is renamed to path only
// when fn succeeds.
func writeFile(path string, fn func(*bufio.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return err
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), path)
}
