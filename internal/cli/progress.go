package cli

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// barReporter renders the per-collection fan-out as a progress bar.
type barReporter struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func newBarReporter(out io.Writer) *barReporter {
	return &barReporter{out: out}
}

func (r *barReporter) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Searching[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(r.out)
		}),
	)
}

func (r *barReporter) Advance(collection string) {
	if r.bar == nil {
		return
	}
	r.bar.Describe(fmt.Sprintf("[cyan]Searched %s[reset]", collection))
	_ = r.bar.Add(1)
}

func (r *barReporter) Finish() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
}
