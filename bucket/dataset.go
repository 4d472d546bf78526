package bucket

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/jmorganca/headliner/types/errtypes"
)

// Dataset holds the examples of one data split grouped by bucket. It is not
// modified after Read returns.
type Dataset struct {
	Buckets  []Bucket
	Examples [][]Example

	// Read is the number of line pairs read, Dropped the number of those
	// that did not fit any bucket.
	Read    int
	Dropped int
}

func NewDataset(buckets []Bucket) *Dataset {
	return &Dataset{
		Buckets:  buckets,
		Examples: make([][]Example, len(buckets)),
	}
}

// Add assigns an example to its bucket, counting it as dropped if none fits.
func (d *Dataset) Add(source, target []int32) (int, bool) {
	d.Read++
	i, ok := Assign(source, target, d.Buckets)
	if !ok {
		d.Dropped++
		return i, false
	}

	d.Examples[i] = append(d.Examples[i], NewExample(source, target))
	return i, true
}

// Sizes returns the number of examples per bucket.
func (d *Dataset) Sizes() []int {
	sizes := make([]int, len(d.Examples))
	for i, examples := range d.Examples {
		sizes[i] = len(examples)
	}
	return sizes
}

// Len is the number of examples kept across all buckets.
func (d *Dataset) Len() int {
	var n int
	for _, examples := range d.Examples {
		n += len(examples)
	}
	return n
}

// Read loads line aligned source and target id files into buckets. At most
// maxSize line pairs are read when maxSize is positive. Reading stops at the
// end of the shorter file.
func Read(ctx context.Context, sourcePath, targetPath string, buckets []Bucket, maxSize int) (*Dataset, error) {
	sf, err := os.Open(sourcePath)
	if err != nil {
		return nil, &errtypes.LoadError{Path: sourcePath, Err: err}
	}
	defer sf.Close()

	tf, err := os.Open(targetPath)
	if err != nil {
		return nil, &errtypes.LoadError{Path: targetPath, Err: err}
	}
	defer tf.Close()

	d := NewDataset(buckets)
	sr, tr := bufio.NewReader(sf), bufio.NewReader(tf)
	for maxSize <= 0 || d.Read < maxSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sline, serr := readLine(sr)
		tline, terr := readLine(tr)
		if errors.Is(serr, io.EOF) || errors.Is(terr, io.EOF) {
			break
		} else if serr != nil {
			return nil, &errtypes.LoadError{Path: sourcePath, Err: serr}
		} else if terr != nil {
			return nil, &errtypes.LoadError{Path: targetPath, Err: terr}
		}

		source, err := ParseIDs(sline)
		if err != nil {
			return nil, &errtypes.LoadError{Path: sourcePath, Reason: fmt.Sprintf("line %d", d.Read+1), Err: err}
		}

		target, err := ParseIDs(tline)
		if err != nil {
			return nil, &errtypes.LoadError{Path: targetPath, Reason: fmt.Sprintf("line %d", d.Read+1), Err: err}
		}

		d.Add(source, target)
		if d.Read%1000 == 0 {
			slog.Debug("reading data", "line", d.Read)
		}
	}

	if d.Dropped > 0 {
		slog.Warn("dropped examples larger than every bucket", "source", sourcePath, "dropped", d.Dropped, "read", d.Read)
	}

	slog.Info("read data", "source", sourcePath, "examples", d.Len(), "buckets", d.Sizes())
	return d, nil
}

// readLine returns the next line without its terminator. A final line
// without a newline is returned with a nil error.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// ParseIDs parses a whitespace separated id sequence.
func ParseIDs(s string) ([]int32, error) {
	fields := strings.Fields(s)
	ids := make([]int32, len(fields))
	for i, f := range fields {
		id, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, err
		}
		if id < 0 {
			return nil, fmt.Errorf("negative token id %d", id)
		}
		ids[i] = int32(id)
	}

	return ids, nil
}

// FormatIDs is the inverse of ParseIDs.
func FormatIDs(ids []int32) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = strconv.Itoa(int(id))
	}
	return strings.Join(s, " ")
}
