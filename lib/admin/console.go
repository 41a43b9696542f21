package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// ConsolePrompt is printed before every console command.
const ConsolePrompt = "roc-admin/~ "

// RunConsole reads operator commands line by line from in and executes them on the
// controller. It returns when in is exhausted, the context is done or a shutdown was
// acknowledged.
func RunConsole(ctx context.Context, c *Controller, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(out, ConsolePrompt)

		var line string
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		kind, err := ParseKind(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}

		if err := c.Do(ctx, kind); err != nil {
			fmt.Fprintf(out, "%s failed: %v\n", kind, err)
			continue
		}
		fmt.Fprintf(out, "%s: ok\n", kind)

		if kind == KindShutdown {
			return nil
		}
	}
}
