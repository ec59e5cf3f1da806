package progress

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

var theme = progressbar.Theme{
	Saucer:        "=",
	SaucerHead:    ">",
	SaucerPadding: " ",
	BarStart:      "[",
	BarEnd:        "]",
}

// Enabled reports whether stderr is a terminal worth drawing on.
func Enabled() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// Bar draws embedding progress. The bar is created on the first report, once
// the total is known. A nil *Bar ignores every call.
type Bar struct {
	w    io.Writer
	desc string

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewBar returns a bar writing to w, or nil when disabled.
func NewBar(enabled bool, w io.Writer, desc string) *Bar {
	if !enabled {
		return nil
	}
	return &Bar{w: w, desc: desc}
}

// Report matches the index progress callback.
func (b *Bar) Report(done, total int) {
	if b == nil || total <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		b.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(b.w),
			progressbar.OptionSetDescription(b.desc),
			progressbar.OptionSetWidth(32),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(theme),
		)
	}
	_ = b.bar.Set(done)
}

func (b *Bar) Finish() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// StartSpinner animates desc on w until the returned stop func is called.
func StartSpinner(enabled bool, w io.Writer, desc string) func() {
	if !enabled {
		return func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSpinnerType(9),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(10),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(theme),
	)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = bar.Add(1)
			case <-done:
				_ = bar.Finish()
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped
		})
	}
}
