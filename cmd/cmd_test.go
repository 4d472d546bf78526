package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/headliner/api"
	"github.com/jmorganca/headliner/checkpoint"
	"github.com/jmorganca/headliner/envconfig"
	"github.com/jmorganca/headliner/types/errtypes"
)

const articles = `title,text
Markets rally,Stocks rose sharply today as markets rally on good news .
Rain expected,Forecasters say heavy rain expected across the region tomorrow .
Team wins final,The home team wins final match in front of a huge crowd .
Markets fall,Stocks fell today as markets fall on bad news .
Storm warning,A storm warning was issued for the coast .
`

func writeConfig(t *testing.T, dir, mode string) string {
	t.Helper()
	path := func(name string) string {
		return filepath.ToSlash(filepath.Join(dir, name))
	}

	content := fmt.Sprintf(`
[strings]
mode = %q
working_directory = %q
train_enc = %q
train_dec = %q
eval_enc = %q
eval_dec = %q
test_enc = %q
output = %q
buckets = "8x4,16x8"

[ints]
enc_vocab_size = 40
dec_vocab_size = 20
num_layers = 1
hidden_units = 8
batch_size = 2
steps_per_checkpoint = 2

[floats]
learning_rate = 0.5
max_gradient_norm = 5.0
`, mode, path("work"), path("data/train.enc"), path("data/train.dec"), path("data/test.enc"), path("data/test.dec"), path("data/test.enc"), path("output/predicted.txt"))

	configPath := filepath.Join(dir, mode+".toml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath
}

func execute(t *testing.T, ctx context.Context, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCLI()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestEndToEnd(t *testing.T) {
	t.Setenv("HEADLINER_SEED", "7")
	t.Setenv("HEADLINER_NOPROMPT", "1")
	envconfig.LoadConfig()
	t.Cleanup(envconfig.LoadConfig)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "news.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(articles), 0o644))

	trainConfig := writeConfig(t, dir, "train")
	out, err := execute(t, context.Background(), "", "prepare", csvPath, "--config", trainConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "vocab40_enc.txt")
	assert.FileExists(t, filepath.Join(dir, "data", "train.enc.ids40"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	plotPath := filepath.Join(dir, "history.png")
	_, err = execute(t, ctx, "", "train", "--config", trainConfig, "--plot", plotPath)
	require.NoError(t, err)
	assert.FileExists(t, plotPath)

	e, ok, err := checkpoint.Latest(filepath.Join(dir, "work"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Positive(t, e.Step)

	out, err = execute(t, context.Background(), "", "inspect", "--config", trainConfig)
	require.NoError(t, err)
	assert.Contains(t, out, e.Path)
	assert.Contains(t, out, "8x4,16x8")

	out, err = execute(t, context.Background(), "", "history", "--config", trainConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "CHECKPOINTS")
	assert.Contains(t, out, ckptRun(t, e.Path))

	out, err = execute(t, context.Background(), "", "history", ckptRun(t, e.Path), "--config", trainConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "EVAL PERPLEXITY")

	_, err = execute(t, context.Background(), "", "history", "no-such-run", "--config", trainConfig)
	require.Error(t, err)

	out, err = execute(t, context.Background(), "", "plot", "--config", trainConfig)
	require.NoError(t, err)
	assert.FileExists(t, strings.TrimSpace(out))

	out, err = execute(t, context.Background(), "", "plot", "-o", "-", "--config", trainConfig)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "\x89PNG"))

	testConfig := writeConfig(t, dir, "test")
	out, err = execute(t, context.Background(), "", "run", "--config", testConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "Mode : test")

	predicted, err := os.ReadFile(filepath.Join(dir, "output", "predicted.txt"))
	require.NoError(t, err)
	test, err := os.ReadFile(filepath.Join(dir, "data", "test.enc"))
	require.NoError(t, err)
	assert.Equal(t, strings.Count(string(test), "\n"), strings.Count(string(predicted), "\n"))

	report := filepath.Join(dir, "BLEU.txt")
	out, err = execute(t, context.Background(), "", "evaluate", "--config", testConfig, "--report", report)
	require.NoError(t, err)
	assert.Contains(t, out, "average BLEU")
	assert.FileExists(t, report)

	interactiveConfig := writeConfig(t, dir, "interactive")
	out, err = execute(t, context.Background(), "stocks rose today\nstorm warning\n", "interactive", "--config", interactiveConfig)
	require.NoError(t, err)
	assert.NotContains(t, out, "> ")
}

func ckptRun(t *testing.T, path string) string {
	t.Helper()
	ckpt, err := checkpoint.Read(path)
	require.NoError(t, err)
	return ckpt.State.RunID
}

func TestConfigErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ints]\nnum_layers = \"three\"\n"), 0o644))

	_, err := execute(t, context.Background(), "", "run", "--config", path)
	var ce *errtypes.ConfigError
	require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)

	_, err = execute(t, context.Background(), "", "run", "--config", filepath.Join(dir, "missing.toml"))
	var le *errtypes.LoadError
	require.True(t, errors.As(err, &le), "expected LoadError, got %v", err)

	interactive := filepath.Join(dir, "interactive.toml")
	require.NoError(t, os.WriteFile(interactive, []byte(`
[strings]
mode = "interactive"
working_directory = "work"

[ints]
enc_vocab_size = 40
dec_vocab_size = 20
num_layers = 1
hidden_units = 8
batch_size = 2
steps_per_checkpoint = 2

[floats]
learning_rate = 0.5
max_gradient_norm = 5.0
`), 0o644))

	_, err = execute(t, context.Background(), "", "train", "--config", interactive)
	require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)

	_, err = execute(t, context.Background(), "", "test", "--config", interactive)
	require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
}

func TestSummarize(t *testing.T) {
	var heartbeats atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/":
			heartbeats.Add(1)
		case r.Method == http.MethodPost && r.URL.Path == "/api/summarize":
			var req api.SummarizeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "stocks rose today", req.Text)
			json.NewEncoder(w).Encode(api.SummarizeResponse{Summary: "markets rally", Bucket: "30x10", Tokens: 2})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	t.Setenv("HEADLINER_HOST", strings.TrimPrefix(ts.URL, "http://"))
	envconfig.LoadConfig()
	t.Cleanup(envconfig.LoadConfig)

	out, err := execute(t, context.Background(), "", "summarize", "stocks", "rose", "today")
	require.NoError(t, err)
	assert.Equal(t, "markets rally\n", out)
	assert.Equal(t, int32(1), heartbeats.Load())
}

func TestSummarizeNoServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	t.Setenv("HEADLINER_HOST", addr)
	envconfig.LoadConfig()
	t.Cleanup(envconfig.LoadConfig)

	_, err = execute(t, context.Background(), "", "summarize", "stocks")
	require.ErrorContains(t, err, "could not connect")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(dir))

	t.Setenv("HEADLINER_TEST_DOTENV", "")
	os.Unsetenv("HEADLINER_TEST_DOTENV")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HEADLINER_TEST_DOTENV=loaded\n"), 0o644))
	require.NoError(t, LoadDotEnv(dir))
	assert.Equal(t, "loaded", os.Getenv("HEADLINER_TEST_DOTENV"))
}

func TestEnvDocs(t *testing.T) {
	out, err := execute(t, context.Background(), "", "serve", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "HEADLINER_HOST")
	assert.Contains(t, out, "HEADLINER_CONFIG")
}
