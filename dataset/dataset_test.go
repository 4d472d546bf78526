package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/headliner/config"
	"github.com/jmorganca/headliner/types/errtypes"
	"github.com/jmorganca/headliner/vocab"
)

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	path := func(name string) string {
		return filepath.ToSlash(filepath.Join(dir, name))
	}

	c, err := config.Parse(fmt.Sprintf(`
[strings]
mode = "train"
working_directory = %q
train_enc = %q
train_dec = %q
eval_enc = %q
eval_dec = %q

[ints]
enc_vocab_size = 10
dec_vocab_size = 8
num_layers = 1
hidden_units = 4
batch_size = 2
steps_per_checkpoint = 10
seed = 42

[floats]
learning_rate = 0.5
max_gradient_norm = 5.0
`, path("work"), path("train.enc"), path("train.dec"), path("eval.enc"), path("eval.dec")))
	require.NoError(t, err)
	return c
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestReadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "news.csv")
	writeTestFile(t, path, "id,title,text,label\n"+
		"1,Big news,\"The story\nspans lines.\",REAL\n"+
		"2,,no title,FAKE\n"+
		"3,Short,\"Quoted, text\",FAKE\n"+
		"4,Broken\n")

	articles, err := ReadCSV(context.Background(), path)
	require.NoError(t, err)

	want := []Article{
		{Title: "Big news", Text: "The story spans lines."},
		{Title: "Short", Text: "Quoted, text"},
	}
	if diff := cmp.Diff(want, articles); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	writeTestFile(t, path, "id,headline\n1,x\n")
	_, err = ReadCSV(context.Background(), path)
	var le *errtypes.LoadError
	require.True(t, errors.As(err, &le))
}

func TestSplit(t *testing.T) {
	var articles []Article
	for i := range 10 {
		articles = append(articles, Article{Title: fmt.Sprint(i), Text: fmt.Sprint(i)})
	}

	train, test := Split(articles, 0.2, 42)
	assert.Len(t, train, 8)
	assert.Len(t, test, 2)

	again, _ := Split(articles, 0.2, 42)
	assert.Equal(t, train, again)

	seen := make(map[string]bool)
	for _, a := range append(train, test...) {
		seen[a.Title] = true
	}
	assert.Len(t, seen, 10)
	assert.Equal(t, "0", articles[0].Title)
}

func TestSplitCSV(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir)

	var b strings.Builder
	b.WriteString("title,text\n")
	for i := range 5 {
		fmt.Fprintf(&b, "title %d,text %d\n", i, i)
	}
	csvPath := filepath.Join(dir, "news.csv")
	writeTestFile(t, csvPath, b.String())

	require.NoError(t, SplitCSV(context.Background(), csvPath, c, DefaultTestFraction))

	trainEnc := strings.Split(strings.TrimSpace(readFile(t, c.TrainEnc)), "\n")
	trainDec := strings.Split(strings.TrimSpace(readFile(t, c.TrainDec)), "\n")
	evalEnc := strings.Split(strings.TrimSpace(readFile(t, c.EvalEnc)), "\n")
	assert.Len(t, trainEnc, 4)
	assert.Len(t, evalEnc, 1)

	for i := range trainEnc {
		assert.Equal(t, strings.Replace(trainEnc[i], "text", "title", 1), trainDec[i])
	}
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir)

	writeTestFile(t, c.TrainEnc, "the cat sat .\nthe dog ran !\nthe end\n")
	writeTestFile(t, c.TrainDec, "cat sat\ndog ran\nend\n")
	writeTestFile(t, c.EvalEnc, "the bird flew\n")
	writeTestFile(t, c.EvalDec, "bird\n")

	files, err := Prepare(context.Background(), c)
	require.NoError(t, err)

	assert.LessOrEqual(t, files.SourceVocab.Size(), 10)
	assert.Equal(t, int32(4), files.SourceVocab.ID("the"))
	assert.FileExists(t, c.SourceVocabPath())
	assert.FileExists(t, c.TargetVocabPath())

	assert.Equal(t, c.TrainEnc+".ids10", files.TrainEnc)
	assert.Equal(t, c.EvalDec+".ids8", files.EvalDec)

	lines := strings.Split(strings.TrimSpace(readFile(t, files.EvalEnc)), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, fmt.Sprintf("4 %d %d", vocab.UNK, vocab.UNK), lines[0])

	// existing files are reused
	writeTestFile(t, files.EvalEnc, "9\n")
	files, err = Prepare(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "9\n", readFile(t, files.EvalEnc))
}

func TestPrepareMissingData(t *testing.T) {
	c := testConfig(t, t.TempDir())
	_, err := Prepare(context.Background(), c)
	var le *errtypes.LoadError
	require.True(t, errors.As(err, &le), "expected LoadError, got %v", err)
	assert.Equal(t, c.TrainEnc, le.Path)
}
