// Package headless runs the chat as a plain line REPL for pipes and
// non-terminal use.
package headless

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jeanpaul/memoria/internal/agent"
)

const resultPreviewLen = 200

// consolidationContext bounds the end-of-session consolidation. The chat
// context may already be canceled by the first interrupt, so a second
// interrupt is what stops consolidation.
var consolidationContext = func() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Run reads one user message per line from in until quit, exit, EOF or
// ctx is done, then consolidates memory. Reply text goes to out; tool
// activity and status go to errOut.
func Run(ctx context.Context, sess *agent.Session, cons *agent.Consolidator, in io.Reader, out, errOut io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

read:
	for {
		fmt.Fprint(errOut, "> ")
		var line string
		select {
		case <-ctx.Done():
			break read
		case l, ok := <-lines:
			if !ok {
				break read
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if w := strings.ToLower(line); w == "quit" || w == "exit" {
			break read
		}
		turn(ctx, sess, line, out, errOut)
	}

	fmt.Fprintln(errOut, "\nConsolidating memory... (Ctrl+C to skip)")
	cctx, stop := consolidationContext()
	defer stop()
	rep := cons.Consolidate(cctx, sess.Messages())
	fmt.Fprintln(errOut, rep.String())
	return nil
}

func turn(ctx context.Context, sess *agent.Session, text string, out, errOut io.Writer) {
	events := make(chan agent.Event, 64)
	go func() {
		defer close(events)
		sess.Send(ctx, text, events)
	}()

	for ev := range events {
		switch ev.Type {
		case agent.EventDelta:
			fmt.Fprint(out, ev.Text)

		case agent.EventToolCall:
			fmt.Fprintf(errOut, "\n[tool: %s]\n", ev.ToolArgs)

		case agent.EventToolResult:
			fmt.Fprintf(errOut, "[result: %s]\n", preview(ev.Result))

		case agent.EventNotice:
			fmt.Fprintf(errOut, "\n[notice: %s]\n", ev.Error)

		case agent.EventError:
			fmt.Fprintf(errOut, "\n[error: %s]\n", ev.Error)

		case agent.EventDone:
			fmt.Fprintln(out)
		}
	}
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > resultPreviewLen {
		return string(r[:resultPreviewLen]) + "..."
	}
	return s
}
