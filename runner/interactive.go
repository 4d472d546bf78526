package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const Prompt = "> "

// LineReader returns one line of input at a time and io.EOF when input is
// exhausted.
type LineReader interface {
	ReadLine() (string, error)
}

type promptReader struct {
	r      *bufio.Reader
	w      io.Writer
	prompt string
}

// NewPromptReader writes prompt to w before reading each line of r.
func NewPromptReader(r io.Reader, w io.Writer, prompt string) LineReader {
	return &promptReader{r: bufio.NewReader(r), w: w, prompt: prompt}
}

func (p *promptReader) ReadLine() (string, error) {
	if p.prompt != "" {
		if _, err := io.WriteString(p.w, p.prompt); err != nil {
			return "", err
		}
	}

	line, err := p.r.ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		err = nil
	}
	return strings.TrimRight(line, "\r\n"), err
}

// Terminal is a line editing reader on a terminal in raw mode.
type Terminal struct {
	fd       int
	oldState *term.State
	term     *term.Terminal
}

// NewTerminal puts in into raw mode. Close restores it.
func NewTerminal(in *os.File, out io.Writer, prompt string) (*Terminal, error) {
	fd := int(in.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	rw := struct {
		io.Reader
		io.Writer
	}{in, out}

	return &Terminal{fd: fd, oldState: oldState, term: term.NewTerminal(rw, prompt)}, nil
}

func (t *Terminal) ReadLine() (string, error) {
	return t.term.ReadLine()
}

// Write writes through the terminal so output is placed correctly around
// the prompt.
func (t *Terminal) Write(b []byte) (int, error) {
	return t.term.Write(b)
}

func (t *Terminal) Close() error {
	return term.Restore(t.fd, t.oldState)
}

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Interactive decodes every line read from lines and writes its headline to
// w until input ends or ctx is cancelled. Lines that fail to decode report
// the error and continue.
func (d *Decoder) Interactive(ctx context.Context, lines LineReader, w io.Writer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := lines.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		s, err := d.Decode(line)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			continue
		}

		fmt.Fprintln(w, s)
	}
}
