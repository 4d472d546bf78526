// Package checkpoint persists model parameters and training state as CBOR
// files named seq2seq.ckpt-<step> in the working directory.
package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/jmorganca/headliner/logutil"
	"github.com/jmorganca/headliner/model"
	"github.com/jmorganca/headliner/types/errtypes"
)

const Prefix = "seq2seq.ckpt-"

// DefaultKeep is the number of checkpoints kept when none is configured.
const DefaultKeep = 5

// State is the training state saved alongside the parameters.
type State struct {
	RunID        string    `cbor:"run_id"`
	Step         int       `cbor:"step"`
	LearningRate float64   `cbor:"learning_rate"`
	Losses       []float64 `cbor:"losses"`
	Buckets      string    `cbor:"buckets"`
}

type Matrix struct {
	Rows int       `cbor:"rows"`
	Cols int       `cbor:"cols"`
	Data []float64 `cbor:"data"`
}

type Checkpoint struct {
	State  State             `cbor:"state"`
	Params map[string]Matrix `cbor:"params"`
}

// Entry is a checkpoint file found in a directory.
type Entry struct {
	Path string
	Step int
}

// Path returns the checkpoint file for step in dir.
func Path(dir string, step int) string {
	return filepath.Join(dir, Prefix+strconv.Itoa(step))
}

// List returns the checkpoints in dir ordered by ascending step. A missing
// directory has no checkpoints.
func List(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasPrefix(f.Name(), Prefix) {
			continue
		}

		step, err := strconv.Atoi(strings.TrimPrefix(f.Name(), Prefix))
		if err != nil || step < 0 {
			continue
		}

		entries = append(entries, Entry{Path: filepath.Join(dir, f.Name()), Step: step})
	}

	slices.SortFunc(entries, func(a, b Entry) int { return a.Step - b.Step })
	return entries, nil
}

// Latest returns the checkpoint with the highest step in dir. ok is false if
// there is none.
func Latest(dir string) (e Entry, ok bool, err error) {
	entries, err := List(dir)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}

	return entries[len(entries)-1], true, nil
}

// Save writes the parameters of m with state to dir and removes all but the
// newest keep checkpoints. The file is written under a temporary name and
// renamed so that a failed write never leaves a partial checkpoint.
func Save(dir string, m *model.Seq2Seq, state State, keep int) (string, error) {
	ckpt := Checkpoint{State: state, Params: make(map[string]Matrix)}
	for _, p := range m.Parameters() {
		r, c := p.Dims()
		ckpt.Params[p.Name] = Matrix{Rows: r, Cols: c, Data: slices.Clone(p.Value.RawMatrix().Data)}
	}

	b, err := cbor.Marshal(ckpt)
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(dir, "."+Prefix+"*")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(b); err != nil {
		f.Close()
		return "", err
	}

	if err := f.Close(); err != nil {
		return "", err
	}

	path := Path(dir, state.Step)
	if err := os.Rename(f.Name(), path); err != nil {
		return "", err
	}

	slog.Debug("saved checkpoint", "path", path, "size", len(b))
	if err := prune(dir, keep); err != nil {
		slog.Warn("failed to prune checkpoints", "dir", dir, "error", err)
	}

	return path, nil
}

func prune(dir string, keep int) error {
	if keep <= 0 {
		keep = DefaultKeep
	}

	entries, err := List(dir)
	if err != nil {
		return err
	}

	for len(entries) > keep {
		if err := os.Remove(entries[0].Path); err != nil {
			return err
		}
		logutil.Trace("removed checkpoint", "path", entries[0].Path)
		entries = entries[1:]
	}

	return nil
}

// Read decodes the checkpoint at path.
func Read(path string) (*Checkpoint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &errtypes.LoadError{Path: path, Err: err}
	}

	var ckpt Checkpoint
	if err := cbor.Unmarshal(b, &ckpt); err != nil {
		return nil, &errtypes.LoadError{Path: path, Reason: "corrupt checkpoint", Err: err}
	}

	for name, p := range ckpt.Params {
		if p.Rows <= 0 || p.Cols <= 0 || len(p.Data) != p.Rows*p.Cols {
			return nil, &errtypes.LoadError{Path: path, Reason: fmt.Sprintf("parameter %s has %d values for shape [%d,%d]", name, len(p.Data), p.Rows, p.Cols)}
		}
	}

	return &ckpt, nil
}

// Load restores the checkpoint at path into m and returns its state.
func Load(path string, m *model.Seq2Seq) (*State, error) {
	ckpt, err := Read(path)
	if err != nil {
		return nil, err
	}

	values := make(map[string]*mat.Dense, len(ckpt.Params))
	for name, p := range ckpt.Params {
		values[name] = mat.NewDense(p.Rows, p.Cols, p.Data)
	}

	if err := m.Restore(values); err != nil {
		return nil, &errtypes.LoadError{Path: path, Reason: "incompatible parameters", Err: err}
	}

	m.SetState(ckpt.State.Step, ckpt.State.LearningRate)
	slog.Info("restored checkpoint", "path", path, "step", ckpt.State.Step, "learning_rate", ckpt.State.LearningRate)
	return &ckpt.State, nil
}

// Resume restores m from pretrained when set, otherwise from the latest
// checkpoint in dir. ok is false when there is nothing to restore and m
// keeps its fresh parameters.
func Resume(dir, pretrained string, m *model.Seq2Seq) (state *State, ok bool, err error) {
	path := pretrained
	if path == "" {
		e, found, err := Latest(dir)
		if err != nil {
			return nil, false, &errtypes.LoadError{Path: dir, Err: err}
		} else if !found {
			slog.Info("created model with fresh parameters", "dir", dir)
			return nil, false, nil
		}
		path = e.Path
	}

	state, err = Load(path, m)
	if err != nil {
		return nil, false, err
	}

	return state, true, nil
}
