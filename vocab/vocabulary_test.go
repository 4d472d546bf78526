package vocab

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/headliner/types/errtypes"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"the cat sat", []string{"the", "cat", "sat"}},
		{"  spaced\tout \n", []string{"spaced", "out"}},
		{"Hello, world!", []string{"Hello", ",", "world", "!"}},
		{`he said "no" (twice).`, []string{"he", "said", `"`, "no", `"`, "(", "twice", ")", "."}},
		{"it's 3:30", []string{"it", "'", "s", "3", ":", "30"}},
		{"", nil},
		{"...", []string{".", ".", "."}},
		{"naïve café", []string{"naïve", "café"}},
	}

	for _, tt := range cases {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Tokenize(tt.in)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	v := Build([]string{"the cat sat", "the dog ran"}, 10)

	want := []string{"_PAD", "_GO", "_EOS", "_UNK", "the", "cat", "sat", "dog", "ran"}
	if diff := cmp.Diff(want, v.Values); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, int32(4), v.ID("the"))
	assert.Equal(t, PAD, v.ID("_PAD"))
	assert.Equal(t, UNK, v.ID("bird"))
}

func TestBuildMaxSize(t *testing.T) {
	v := Build([]string{"a b b c c c d d d d"}, 2)
	if diff := cmp.Diff([]string{"_PAD", "_GO", "_EOS", "_UNK", "d", "c"}, v.Values); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	v = Build([]string{"x y", "_UNK _PAD x"}, 0)
	assert.Equal(t, 4, v.Size())
}

func TestInverse(t *testing.T) {
	v := Build([]string{"one two three, four. five!"}, 100)
	for i, value := range v.Values {
		id := v.ID(value)
		assert.Equal(t, int32(i), id)

		token, err := v.Token(id)
		require.NoError(t, err)
		assert.Equal(t, value, token)
	}
}

func TestRoundTrip(t *testing.T) {
	v := Build([]string{"the cat sat on the mat"}, 100)

	text := "the mat sat on the cat"
	got, err := v.Decode(v.Encode(text))
	require.NoError(t, err)
	assert.Equal(t, text, got)

	ids := v.Encode("the dog sat on a mat")
	if diff := cmp.Diff([]int32{v.ID("the"), UNK, v.ID("sat"), v.ID("on"), UNK, v.ID("mat")}, ids); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	got, err = v.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "the _UNK sat on _UNK mat", got)
}

func TestDecode(t *testing.T) {
	v := Build([]string{"a b"}, 10)

	got, err := v.Decode([]int32{PAD, v.ID("a"), PAD, v.ID("b"), EOS})
	require.NoError(t, err)
	assert.Equal(t, "a b _EOS", got)

	_, err = v.Decode([]int32{v.ID("a"), int32(v.Size())})
	require.ErrorIs(t, err, ErrIndex)

	_, err = v.Decode([]int32{-1})
	require.ErrorIs(t, err, ErrIndex)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab10_enc.txt")

	v := Build([]string{"the cat sat", "the dog ran"}, 10)
	require.NoError(t, v.Save(path))

	bts, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(v.Values, "\n")+"\n", string(bts))

	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(v.Values, loaded.Values); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, v.Encode("the dog sat"), loaded.Encode("the dog sat"))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"empty":      "",
		"truncated":  "_PAD\n_GO\n",
		"misordered": "_GO\n_PAD\n_EOS\n_UNK\nthe\n",
		"blank line": "_PAD\n_GO\n_EOS\n_UNK\n\nthe\n",
		"duplicate":  "_PAD\n_GO\n_EOS\n_UNK\nthe\ncat\nthe\n",
		"whitespace": "_PAD\n_GO\n_EOS\n_UNK\nthe cat\n",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_"))
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := Load(path)
			var le *errtypes.LoadError
			require.True(t, errors.As(err, &le), "expected LoadError, got %v", err)
			assert.Equal(t, path, le.Path)
		})
	}

	t.Run("missing", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.txt"))
		var le *errtypes.LoadError
		require.True(t, errors.As(err, &le))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("crlf", func(t *testing.T) {
		path := filepath.Join(dir, "crlf.txt")
		require.NoError(t, os.WriteFile(path, []byte("_PAD\r\n_GO\r\n_EOS\r\n_UNK\r\nthe\r\n"), 0o644))

		v, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, int32(4), v.ID("the"))
	})
}
