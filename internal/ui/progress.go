package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"starload/internal/catalog"
	"starload/internal/pipeline"
)

// ProgressBar reports a run stage by stage. It implements pipeline.Observer.
type ProgressBar struct {
	mu sync.Mutex

	stage     catalog.Stage
	total     int
	current   int
	startTime time.Time

	successCount int
	failureCount int
	skippedCount int
	currentName  string
}

var _ pipeline.Observer = (*ProgressBar)(nil)

// NewProgressBar creates a progress bar for one run.
func NewProgressBar() *ProgressBar {
	return &ProgressBar{startTime: time.Now()}
}

// StageStarted begins a new bar.
func (p *ProgressBar) StageStarted(stage catalog.Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.currentName = ""
	fmt.Fprintf(out, "\n%s %s (%d statements)\n", ColorBold(">"), ColorBold(string(stage)), total)
}

// StatementFinished advances the bar.
func (p *ProgressBar) StatementFinished(stage catalog.Stage, index int, result pipeline.StatementResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = index + 1
	p.currentName = result.Name
	switch {
	case result.Err != nil:
		p.failureCount++
	case result.Skipped:
		p.skippedCount++
	default:
		p.successCount++
	}
	p.render()
}

// StageFinished ends the bar with the stage outcome.
func (p *ProgressBar) StageFinished(report pipeline.StageReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(out, "\r\033[K")
	if report.Completed {
		fmt.Fprintf(out, "  %s %s: %d/%d in %s\n",
			ColorSuccess("ok"), report.Stage, len(report.Statements), report.Total, FormatDuration(report.Duration))
		return
	}
	fmt.Fprintf(out, "  %s %s: stopped after %d/%d\n",
		ColorError("failed"), report.Stage, len(report.Statements), report.Total)
}

// Finish prints the run totals.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(out, "\nFinished in %s: %s executed", FormatDuration(time.Since(p.startTime)), ColorSuccess(fmt.Sprint(p.successCount)))
	if p.skippedCount > 0 {
		fmt.Fprintf(out, ", %d skipped", p.skippedCount)
	}
	if p.failureCount > 0 {
		fmt.Fprintf(out, ", %s failed", ColorError(fmt.Sprint(p.failureCount)))
	}
	fmt.Fprintln(out)
}

func (p *ProgressBar) render() {
	fmt.Fprint(out, "\r\033[K")

	percentage := 100.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100
	}

	barWidth := 30
	filled := int(percentage / 100 * float64(barWidth))
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)

	name := p.currentName
	if len(name) > 40 {
		name = "..." + name[len(name)-37:]
	}

	fmt.Fprintf(out, "  %s %3.0f%% [%d/%d] %s",
		ColorProgress(bar),
		percentage,
		p.current,
		p.total,
		name,
	)
}

// Spinner represents an animated spinner for long operations
type Spinner struct {
	frames  []string
	current int
	message string
	stop    chan struct{}
	stopped bool
	mu      sync.Mutex
}

// NewSpinner creates a new spinner
func NewSpinner(message string) *Spinner {
	return &Spinner{
		frames:  []string{"|", "/", "-", "\\"},
		message: message,
		stop:    make(chan struct{}),
	}
}

// Start begins the spinner animation
func (s *Spinner) Start() {
	if !supportsColor {
		fmt.Fprintf(out, "%s...\n", s.message)
		return
	}
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.stopped {
					fmt.Fprintf(out, "\r%s %s", ColorProgress(s.frames[s.current]), s.message)
					s.current = (s.current + 1) % len(s.frames)
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Stop stops the spinner and prints the final status. Calling it twice is safe.
func (s *Spinner) Stop(success bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)

	if supportsColor {
		fmt.Fprint(out, "\r\033[K")
	}
	if success {
		fmt.Fprintf(out, "%s %s\n", ColorSuccess("ok"), message)
	} else {
		fmt.Fprintf(out, "%s %s\n", ColorError("failed"), message)
	}
}

// UpdateMessage updates the spinner message
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}
