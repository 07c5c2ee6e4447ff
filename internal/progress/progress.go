// Package progress displays training progress on the command line.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/naresrac/CNTK/internal/loop"
	"github.com/schollz/progressbar/v3"
)

// HookName is the name of the loop hooks added by Attach.
const HookName = "progress.bar"

// maxUpdateFrequency is the time between redraws of the interactive display.
const maxUpdateFrequency = 200 * time.Millisecond

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
)

type update struct {
	amount int
	rows   [][2]string
}

// bar follows a Loop. Interactive bars redraw a progress bar and a stats
// table asynchronously; plain bars print one line every `every` steps.
type bar struct {
	w           io.Writer
	interactive bool
	every       int

	bar          *progressbar.ProgressBar
	out          *termenv.Output
	statsStyle   lipgloss.Style
	lastRows     int
	updates      chan update
	drawingsDone sync.WaitGroup
}

// Attach displays the progress of every run of l on w. When interactive is
// false, a line is printed every `every` steps (every <= 0 means 50) and at
// the end of the run.
func Attach(l *loop.Loop, w io.Writer, interactive bool, every int) {
	if every <= 0 {
		every = 50
	}
	b := &bar{w: w, interactive: interactive, every: every}
	l.OnStart(HookName, 0, b.onStart)
	l.OnStep(HookName, 0, b.onStep)
	l.OnEnd(HookName, 0, b.onEnd)
}

func (b *bar) onStart(l *loop.Loop) error {
	if !b.interactive {
		return nil
	}
	numSteps := -1
	desc := "Training: "
	if l.EndStep >= 0 {
		numSteps = l.EndStep - l.StartStep
		desc = fmt.Sprintf("Training (%d steps): ", numSteps)
	}
	b.bar = progressbar.NewOptions(numSteps,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	b.out = termenv.NewOutput(b.w)
	b.statsStyle = lipgloss.NewStyle().PaddingLeft(8)
	b.lastRows = 0
	b.updates = make(chan update, 100)
	b.drawingsDone.Add(1)
	go b.draw()
	return nil
}

func (b *bar) onStep(l *loop.Loop, s *loop.Step) error {
	rows := stepRows(l, s)
	if b.interactive {
		b.updates <- update{amount: 1, rows: rows}
		return nil
	}
	if (l.LoopStep+1)%b.every == 0 {
		b.printLine(rows)
	}
	return nil
}

func (b *bar) onEnd(l *loop.Loop, reason loop.StopReason) error {
	if b.interactive {
		close(b.updates)
		b.drawingsDone.Wait()
		b.updates = nil
		_, _ = fmt.Fprintln(b.w)
	}
	_, err := fmt.Fprintf(b.w, "stopped after %d steps (%s), %s samples seen\n",
		l.LoopStep-l.StartStep, reason, humanize.Comma(l.Trainer.TotalNumberOfSamplesSeen()))
	return err
}

func (b *bar) printLine(rows [][2]string) {
	for i, row := range rows {
		if i > 0 {
			_, _ = fmt.Fprint(b.w, "  ")
		}
		_, _ = fmt.Fprintf(b.w, "%s=%s", row[0], row[1])
	}
	_, _ = fmt.Fprintln(b.w)
}

// draw coalesces queued updates so a slow terminal does not hold training.
func (b *bar) draw() {
	defer b.drawingsDone.Done()
	for u := range b.updates {
		amount := u.amount
	exhaust:
		for {
			select {
			case next, ok := <-b.updates:
				if !ok {
					break exhaust
				}
				amount += next.amount
				u = next
			default:
				break exhaust
			}
		}
		if b.lastRows > 0 {
			b.out.ClearLines(b.lastRows)
		}
		_ = b.bar.Add(amount)
		_, _ = fmt.Fprintln(b.w)
		rendered := b.statsStyle.Render(Table(nil, rowsOf(u.rows)))
		_, _ = fmt.Fprintln(b.w, rendered)
		b.lastRows = lipgloss.Height(rendered) + 1
		time.Sleep(maxUpdateFrequency)
	}
}

func stepRows(l *loop.Loop, s *loop.Step) [][2]string {
	step := fmt.Sprintf("%d", l.LoopStep+1)
	if l.EndStep >= 0 {
		step = fmt.Sprintf("%d / %d", l.LoopStep+1, l.EndStep)
	}
	return [][2]string{
		{"step", step},
		{"minibatch", humanize.Comma(s.Minibatch)},
		{"samples", humanize.Comma(l.Trainer.TotalNumberOfSamplesSeen())},
		{"loss", fmt.Sprintf("%.6g", s.LossAverage)},
		{"eval", fmt.Sprintf("%.6g", s.EvalAverage)},
	}
}

func rowsOf(pairs [][2]string) [][]string {
	rows := make([][]string, len(pairs))
	for i, p := range pairs {
		rows[i] = []string{p[0], p[1]}
	}
	return rows
}

// Table renders rows as a rounded table. The first column is right aligned.
// headers may be nil.
func Table(headers []string, rows [][]string) string {
	t := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 && row != lgtable.HeaderRow {
				return rightAlignedStyle
			}
			return normalStyle
		})
	if len(headers) > 0 {
		t.Headers(headers...)
	}
	t.Rows(rows...)
	return t.String()
}
