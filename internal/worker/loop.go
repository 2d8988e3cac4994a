package worker

import (
	"context"
	"io"
	"os"

	"github.com/cboone/tact/internal/runtime"
	"github.com/cboone/tact/internal/wireproto"
)

// RunLoop is the hidden worker subcommand's entry point: it reads
// Requests from stdin and writes Events to stdout until stdin closes,
// running exactly one test at a time (spec.md §4.D: "a worker runs
// exactly one test at a time").
func RunLoop(ctx context.Context) error {
	rt := runtime.New()
	r := wireproto.NewReader(os.Stdin)
	w := wireproto.NewWriter(os.Stdout)

	for {
		var req wireproto.Request
		if err := r.ReadFrame(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		runtime.RunAttempt(ctx, rt, req, func(ev wireproto.Event) {
			_ = w.WriteFrame(ev)
		})
	}
}
