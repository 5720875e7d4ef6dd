// SPDX-License-Identifier: AGPL-3.0-only
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/isol178/agent-omoikane/internal/logging"
)

const maxLineSize = 1 << 20

// QueryRunner resolves one query to its final answer.
type QueryRunner interface {
	ProcessQuery(ctx context.Context, query string) (string, error)
}

// Shell is the interactive read-query-print loop.
type Shell struct {
	in     io.Reader
	out    io.Writer
	runner QueryRunner
	logger *logging.Logger
}

// New creates a Shell reading queries from in and writing answers to out.
func New(in io.Reader, out io.Writer, runner QueryRunner, logger *logging.Logger) *Shell {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Shell{in: in, out: out, runner: runner, logger: logger}
}

// Run prompts for queries until the user types quit, input ends or ctx is
// cancelled. A failed query is reported and the loop keeps going; only a
// read error is returned.
func (s *Shell) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, "\nMCP Client Started!")
	fmt.Fprintln(s.out, "Type your queries or 'quit' to exit.")

	// Stops the reader once Run returns, even when ctx lives on.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines, readErr := s.readLines(ctx)

	for {
		fmt.Fprint(s.out, "\nQuery: ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return <-readErr
			}
			line = l
		}

		query := strings.TrimSpace(line)
		if strings.EqualFold(query, "quit") {
			return nil
		}

		answer, err := s.runner.ProcessQuery(ctx, query)
		if err != nil {
			s.logger.Debugf("Query failed: %v", err)
			fmt.Fprintf(s.out, "\nError: %v\n", err)
			continue
		}
		fmt.Fprintf(s.out, "\n%s\n", answer)
	}
}

// readLines feeds input lines to a channel so a blocked read never holds up
// cancellation. The error channel yields the scanner error once lines closes.
func (s *Shell) readLines(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()

	return lines, errc
}
