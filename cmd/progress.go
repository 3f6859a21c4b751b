package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/osteele/slurm-watcher/internal/ssh"
)

// withDownloadBar shows a byte progress bar on stderr for downloads made
// with the returned context. Nothing is drawn when stderr is not a terminal.
func withDownloadBar(ctx context.Context, description string) (context.Context, func()) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return ctx, func() {}
	}

	var bar *progressbar.ProgressBar
	ctx = ssh.WithProgress(ctx, func(size int64) io.Writer {
		bar = progressbar.NewOptions64(size,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
		)
		return bar
	})
	return ctx, func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}
}
