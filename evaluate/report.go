package evaluate

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/jmorganca/headliner/types/errtypes"
	"github.com/jmorganca/headliner/vocab"
)

// DefaultTop is the number of rows written to the ranked report.
const DefaultTop = 100

const separator = "-------------------------------------------------"

type Row struct {
	Score     float64
	Predicted string
	True      string
	Article   string
}

type Report struct {
	Rows    []Row
	Average float64
}

// Score computes the unigram BLEU of every predicted headline against the
// true headline on the same line. articles may be nil.
func Score(predicted, truth, articles []string) (*Report, error) {
	if len(truth) < len(predicted) {
		return nil, fmt.Errorf("%d predicted headlines but only %d true headlines", len(predicted), len(truth))
	}
	if articles != nil && len(articles) < len(predicted) {
		return nil, fmt.Errorf("%d predicted headlines but only %d articles", len(predicted), len(articles))
	}

	r := Report{Rows: make([]Row, len(predicted))}
	var sum float64
	for i, p := range predicted {
		row := Row{
			Score:     UnigramBLEU(vocab.Tokenize(truth[i]), vocab.Tokenize(p)),
			Predicted: p,
			True:      truth[i],
		}
		if articles != nil {
			row.Article = articles[i]
		}

		r.Rows[i] = row
		sum += row.Score
		if (i+1)%100 == 0 {
			slog.Debug("calculating BLEU", "line", i+1)
		}
	}

	if len(predicted) > 0 {
		r.Average = sum / float64(len(predicted))
	}

	return &r, nil
}

// Evaluate reads at most limit lines of each file and scores them.
// articlesPath may be empty. A limit of 0 reads every line.
func Evaluate(predictedPath, truePath, articlesPath string, limit int) (*Report, error) {
	predicted, err := ReadLines(predictedPath, limit)
	if err != nil {
		return nil, err
	}

	truth, err := ReadLines(truePath, limit)
	if err != nil {
		return nil, err
	}

	var articles []string
	if articlesPath != "" {
		if articles, err = ReadLines(articlesPath, limit); err != nil {
			return nil, err
		}
	}

	return Score(predicted, truth, articles)
}

// ReadLines returns the first limit lines of the file at path, trimmed of
// surrounding whitespace.
func ReadLines(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errtypes.LoadError{Path: path, Err: err}
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for (limit <= 0 || len(lines) < limit) && scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return nil, &errtypes.LoadError{Path: path, Err: err}
	}

	return lines, nil
}

// Ranked returns the n best scoring rows, highest first. Ties keep their
// input order.
func (r *Report) Ranked(n int) []Row {
	rows := slices.Clone(r.Rows)
	slices.SortStableFunc(rows, func(a, b Row) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return rows
}

// WriteRanked writes the n best rows one field per line, each record
// followed by a separator line.
func (r *Report) WriteRanked(w io.Writer, n int) error {
	withArticle := slices.ContainsFunc(r.Rows, func(row Row) bool { return row.Article != "" })

	header := []string{"BLEU score", "Predicted headline", "True headline"}
	if withArticle {
		header = append(header, "article")
	}

	bw := bufio.NewWriter(w)
	record := func(fields []string) {
		for _, f := range fields {
			fmt.Fprintln(bw, f)
		}
		fmt.Fprintln(bw, separator)
	}

	record(header)
	for _, row := range r.Ranked(n) {
		fields := []string{strconv.FormatFloat(row.Score, 'f', -1, 64), row.Predicted, row.True}
		if withArticle {
			fields = append(fields, row.Article)
		}
		record(fields)
	}

	return bw.Flush()
}

// WriteSummary renders the aggregate scores as a table.
func (r *Report) WriteSummary(w io.Writer) {
	var perfect, zero int
	for _, row := range r.Rows {
		switch row.Score {
		case 1:
			perfect++
		case 0:
			zero++
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"METRIC", "VALUE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk([][]string{
		{"headlines", strconv.Itoa(len(r.Rows))},
		{"average BLEU", fmt.Sprintf("%.6f", r.Average)},
		{"perfect", strconv.Itoa(perfect)},
		{"zero", strconv.Itoa(zero)},
	})
	table.Render()
}
