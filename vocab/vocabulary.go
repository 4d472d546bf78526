// Package vocab maps tokens to small integer ids and back.
package vocab

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	heap "github.com/emirpasic/gods/v2/trees/binaryheap"

	"github.com/jmorganca/headliner/types/errtypes"
)

const (
	PAD int32 = iota
	GO
	EOS
	UNK
)

// Reserved holds the reserved tokens in id order.
var Reserved = []string{"_PAD", "_GO", "_EOS", "_UNK"}

// ErrIndex is returned when decoding an id outside of the vocabulary.
var ErrIndex = errors.New("token id out of range")

type Vocabulary struct {
	Values []string

	values map[string]int32
}

func New(values []string) (*Vocabulary, error) {
	if len(values) < len(Reserved) {
		return nil, fmt.Errorf("vocabulary has %d tokens, need at least %d reserved", len(values), len(Reserved))
	}

	for i, r := range Reserved {
		if values[i] != r {
			return nil, fmt.Errorf("token %d is %q, expected reserved token %q", i, values[i], r)
		}
	}

	v := Vocabulary{Values: values, values: make(map[string]int32, len(values))}
	for i, value := range values {
		if value == "" || strings.ContainsAny(value, " \t\r\n") {
			return nil, fmt.Errorf("token %d is blank or contains whitespace", i)
		}

		if j, ok := v.values[value]; ok {
			return nil, fmt.Errorf("token %q appears at ids %d and %d", value, j, i)
		}
		v.values[value] = int32(i)
	}

	return &v, nil
}

func (v *Vocabulary) Size() int {
	return len(v.Values)
}

// ID returns the id of a single token, UNK if it is not in the vocabulary.
func (v *Vocabulary) ID(s string) int32 {
	if id, ok := v.values[s]; ok {
		return id
	}

	return UNK
}

// Token returns the token for an id.
func (v *Vocabulary) Token(id int32) (string, error) {
	if id < 0 || int(id) >= len(v.Values) {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrIndex, id, len(v.Values))
	}

	return v.Values[id], nil
}

func (v *Vocabulary) Encode(s string) []int32 {
	words := Tokenize(s)
	ids := make([]int32, len(words))
	for i, w := range words {
		ids[i] = v.ID(w)
	}

	return ids
}

// Decode joins the tokens for ids with single spaces. PAD ids are skipped.
func (v *Vocabulary) Decode(ids []int32) (string, error) {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == PAD {
			continue
		}

		w, err := v.Token(id)
		if err != nil {
			return "", err
		}
		words = append(words, w)
	}

	return strings.Join(words, " "), nil
}

// Save writes one token per line; the line number is the token id.
func (v *Vocabulary) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, value := range v.Values {
		if _, err := fmt.Fprintln(w, value); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}

	return f.Close()
}

// Load reads a vocabulary written by Save. Missing, truncated or otherwise
// corrupt files are reported as *errtypes.LoadError.
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errtypes.LoadError{Path: path, Err: err}
	}
	defer f.Close()

	var values []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		values = append(values, strings.TrimSuffix(scanner.Text(), "\r"))
	}

	if err := scanner.Err(); err != nil {
		return nil, &errtypes.LoadError{Path: path, Err: err}
	}

	v, err := New(values)
	if err != nil {
		return nil, &errtypes.LoadError{Path: path, Reason: "corrupt vocabulary", Err: err}
	}

	slog.Debug("loaded vocabulary", "path", path, "size", v.Size())
	return v, nil
}

type count struct {
	token string
	n     int
	first int
}

// Counter accumulates token frequencies across a corpus.
type Counter struct {
	counts map[string]*count
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[string]*count)}
}

func (c *Counter) Add(s string) {
	for _, w := range Tokenize(s) {
		if _, ok := c.counts[w]; !ok {
			c.counts[w] = &count{token: w, first: len(c.counts)}
		}
		c.counts[w].n++
	}
}

// Vocabulary keeps the maxSize most frequent tokens after the reserved
// tokens. Ties go to the token seen first.
func (c *Counter) Vocabulary(maxSize int) *Vocabulary {
	reserved := make(map[string]bool, len(Reserved))
	for _, r := range Reserved {
		reserved[r] = true
	}

	counts := heap.NewWith(func(a, b *count) int {
		return cmp.Or(cmp.Compare(b.n, a.n), cmp.Compare(a.first, b.first))
	})

	for _, tc := range c.counts {
		if !reserved[tc.token] {
			counts.Push(tc)
		}
	}

	values := append([]string(nil), Reserved...)
	for range maxSize {
		top, ok := counts.Pop()
		if !ok {
			break
		}
		values = append(values, top.token)
	}

	v, err := New(values)
	if err != nil {
		// tokens come from Tokenize and are unique, so this cannot fail
		panic(err)
	}

	return v
}

// Build counts the tokens of every line in corpus and keeps the maxSize most
// frequent.
func Build(corpus []string, maxSize int) *Vocabulary {
	c := NewCounter()
	for _, line := range corpus {
		c.Add(line)
	}

	return c.Vocabulary(maxSize)
}
