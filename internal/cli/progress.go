package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/the-trades-must-flow/internal/ingest"
)

// ImportProgress tracks committed bytes of an import file.
type ImportProgress struct {
	bar     *progressbar.ProgressBar
	writer  io.Writer
	added   int
	dupes   int
	errored int
}

// NewImportProgress creates a progress bar over totalBytes. start is the
// byte offset already committed when resuming.
func NewImportProgress(w io.Writer, totalBytes, start int64) *ImportProgress {
	p := &ImportProgress{writer: w}
	p.bar = progressbar.NewOptions64(totalBytes,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Importing trades...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	if start > 0 {
		if err := p.bar.Set64(start); err != nil {
			slog.Warn("Failed to set progress bar", "error", err)
		}
	}
	return p
}

// Update advances the bar to the chunk's committed byte offset.
func (p *ImportProgress) Update(resp *ingest.ChunkResponse) {
	p.added += resp.Added
	p.dupes += resp.Duplicates
	p.errored += resp.Errors

	p.bar.Describe(fmt.Sprintf("[cyan][bold]Importing trades...[reset] +%d =%d ![red]%d[reset]", p.added, p.dupes, p.errored))
	if err := p.bar.Set64(resp.ProcessedBytes); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
	if resp.Complete {
		if err := p.bar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
	}
}

// Counts reports the added, duplicate and error rows seen so far.
func (p *ImportProgress) Counts() (added, duplicates, errors int) {
	return p.added, p.dupes, p.errored
}
