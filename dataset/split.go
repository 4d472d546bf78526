package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"github.com/jmorganca/headliner/config"
	"github.com/jmorganca/headliner/types/errtypes"
)

// DefaultTestFraction is the share of articles held out for evaluation.
const DefaultTestFraction = 0.2

// Article is one row of the source CSV.
type Article struct {
	Title string
	Text  string
}

// ReadCSV reads the title and text columns of the CSV file at path. Fields
// are collapsed onto a single line. Rows with an empty title or text are
// skipped.
func ReadCSV(ctx context.Context, path string) ([]Article, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errtypes.LoadError{Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, &errtypes.LoadError{Path: path, Reason: "header", Err: err}
	}

	title, text := slices.Index(header, "title"), slices.Index(header, "text")
	if title < 0 || text < 0 {
		return nil, &errtypes.LoadError{Path: path, Reason: fmt.Sprintf("expected title and text columns, got %v", header)}
	}

	var articles []Article
	var skipped int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, &errtypes.LoadError{Path: path, Err: err}
		}

		if len(record) <= max(title, text) {
			skipped++
			continue
		}

		a := Article{Title: oneLine(record[title]), Text: oneLine(record[text])}
		if a.Title == "" || a.Text == "" {
			skipped++
			continue
		}

		articles = append(articles, a)
	}

	if skipped > 0 {
		slog.Warn("skipped incomplete rows", "path", path, "skipped", skipped)
	}

	slog.Info("read articles", "path", path, "articles", len(articles))
	return articles, nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Split shuffles articles with seed and divides them into a training set
// and a test set holding testFraction of the articles.
func Split(articles []Article, testFraction float64, seed uint64) (train, test []Article) {
	shuffled := slices.Clone(articles)
	rng := rand.New(rand.NewPCG(seed, seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := int(float64(len(shuffled)) * testFraction)
	return shuffled[n:], shuffled[:n]
}

// SplitCSV reads the CSV at path and writes the training articles and
// titles to the train_enc and train_dec files and the held out ones to the
// eval_enc and eval_dec files of c.
func SplitCSV(ctx context.Context, path string, c *config.Config, testFraction float64) error {
	if err := c.Require(config.ModeTrain); err != nil {
		return err
	}

	articles, err := ReadCSV(ctx, path)
	if err != nil {
		return err
	}

	train, test := Split(articles, testFraction, c.Seed)
	slog.Info("split articles", "train", len(train), "test", len(test))

	for _, out := range []struct {
		path     string
		articles []Article
		field    func(Article) string
	}{
		{c.TrainEnc, train, func(a Article) string { return a.Text }},
		{c.TrainDec, train, func(a Article) string { return a.Title }},
		{c.EvalEnc, test, func(a Article) string { return a.Text }},
		{c.EvalDec, test, func(a Article) string { return a.Title }},
	} {
		if err := writeFile(out.path, func(w *bufio.Writer) error {
			for _, a := range out.articles {
				if _, err := fmt.Fprintln(w, out.field(a)); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}

	return nil
}
