// Package progress draws spinners and bars on a terminal while long
// running work such as batch decoding proceeds.
package progress

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	defaultTermWidth  = 80
	defaultTermHeight = 24

	redrawInterval = 100 * time.Millisecond
)

// ANSI sequences used to redraw in place.
const (
	hideCursor = "\033[?25l"
	showCursor = "\033[?25h"
	beginSync  = "\033[?2026h"
	endSync    = "\033[?2026l"
	cursorUp   = "\033[A"
	column1    = "\033[1G"
	clearToEOL = "\033[K"
	clearLine  = "\033[2K"
)

type State interface {
	String() string
}

// Progress redraws its states, one per line, until stopped.
type Progress struct {
	mu  sync.Mutex
	out *bufio.Writer

	states []State
	drawn  int

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func NewProgress(w io.Writer) *Progress {
	p := &Progress{
		out:    bufio.NewWriter(w),
		ticker: time.NewTicker(redrawInterval),
		done:   make(chan struct{}),
	}

	p.out.WriteString(hideCursor)
	go p.loop()
	return p
}

func (p *Progress) loop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.draw()
		}
	}
}

func (p *Progress) Add(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.states = append(p.states, state)
}

// finish stops redrawing after one last frame. Only the first call returns
// true.
func (p *Progress) finish() bool {
	first := false
	p.once.Do(func() {
		first = true
		p.ticker.Stop()
		close(p.done)

		p.mu.Lock()
		for _, state := range p.states {
			if s, ok := state.(*Spinner); ok {
				s.Stop()
			}
		}
		p.mu.Unlock()

		p.draw()
	})
	return first
}

// Stop leaves the last frame on screen.
func (p *Progress) Stop() bool {
	first := p.finish()

	p.mu.Lock()
	defer p.mu.Unlock()
	if first {
		p.out.WriteString("\n")
	}
	p.out.WriteString(showCursor)
	p.out.Flush()
	return first
}

// StopAndClear erases the last frame.
func (p *Progress) StopAndClear() bool {
	first := p.finish()

	p.mu.Lock()
	defer p.mu.Unlock()
	if first {
		p.out.WriteString(strings.Repeat(cursorUp, max(p.drawn-1, 0)))
		p.out.WriteString(clearLine + column1)
	}
	p.out.WriteString(showCursor)
	p.out.Flush()
	return first
}

// draw replaces the previous frame with the current states, keeping only as
// many trailing states as fit the terminal.
func (p *Progress) draw() {
	height := defaultTermHeight
	if _, h, err := term.GetSize(int(os.Stderr.Fd())); err == nil {
		height = h
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var frame strings.Builder
	frame.WriteString(beginSync)
	frame.WriteString(strings.Repeat(cursorUp, max(p.drawn-1, 0)))
	frame.WriteString(column1)

	visible := p.states[max(len(p.states)-height, 0):]
	for i, state := range visible {
		if i > 0 {
			frame.WriteString("\n")
		}
		frame.WriteString(state.String())
		frame.WriteString(clearToEOL)
	}
	frame.WriteString(endSync)

	p.out.WriteString(frame.String())
	p.out.Flush()
	p.drawn = len(visible)
}

func termWidth() int {
	width, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil || width <= 0 {
		return defaultTermWidth
	}
	return width
}
