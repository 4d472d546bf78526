package progress

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jmorganca/headliner/format"
)

// Bar counts completed items, such as decoded headlines, against a known
// total.
type Bar struct {
	mu sync.Mutex

	message string
	unit    string
	width   func() int

	maxValue     int64
	currentValue int64

	started time.Time
}

func NewBar(message, unit string, maxValue int64) *Bar {
	return &Bar{
		message:  message,
		unit:     unit,
		width:    termWidth,
		maxValue: maxValue,
		started:  time.Now(),
	}
}

// formatDuration limits the rendering of a time.Duration to 2 units
func formatDuration(d time.Duration) string {
	if d >= 100*time.Hour {
		return "99h+"
	}

	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}

	return d.Round(time.Second).String()
}

func (b *Bar) Set(value int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.currentValue = min(value, b.maxValue)
}

func (b *Bar) percent() float64 {
	if b.maxValue > 0 {
		return float64(b.currentValue) / float64(b.maxValue) * 100
	}

	return 0
}

// rate is the number of items completed per second since the bar started.
func (b *Bar) rate(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(b.currentValue) / elapsed.Seconds()
}

func (b *Bar) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var pre, mid, suf strings.Builder
	if b.message != "" {
		pre.WriteString(strings.TrimSpace(b.message))
		pre.WriteString(" ")
	}

	fmt.Fprintf(&pre, "%3.0f%% ", math.Floor(b.percent()))

	fmt.Fprintf(&suf, "(%s/%s %s", format.HumanNumber(uint64(b.currentValue)), format.HumanNumber(uint64(b.maxValue)), b.unit)

	elapsed := time.Since(b.started)
	rate := b.rate(elapsed)
	inProgress := b.currentValue > 0 && b.currentValue < b.maxValue
	if inProgress {
		fmt.Fprintf(&suf, ", %.1f/s", rate)
	}
	suf.WriteString(")")

	var timing string
	if inProgress && rate > 0 {
		remaining := time.Duration(float64(b.maxValue-b.currentValue) / rate * float64(time.Second))
		timing = fmt.Sprintf("[%s:%s]", formatDuration(elapsed), formatDuration(remaining))
	}

	// 36 is the maximum width for the stats on the right of the bar
	if pad := 36 - suf.Len() - len(timing); pad > 0 {
		suf.WriteString(strings.Repeat(" ", pad))
	}
	suf.WriteString(timing)

	// 2 boundary characters and 1 trailing space
	f := b.width() - pre.Len() - suf.Len() - 3
	if f > 0 {
		n := int(float64(f) * b.percent() / 100)
		mid.WriteString("▕")
		mid.WriteString(strings.Repeat("█", n))
		mid.WriteString(strings.Repeat(" ", f-n))
		mid.WriteString("▏")
	}

	return pre.String() + mid.String() + suf.String()
}
