package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"
)

const (
	welcomeLine = "Welcome to the Cloud Inventory Dashboard! Ask me about your AWS resources."
	goodbyeLine = "Goodbye!"
)

// Loop reads one question per line from in and writes answers to out until
// exit, quit, EOF or ctx cancellation. Turn failures are printed and the loop
// continues; only a read error is returned.
//
// The reader goroutine stops once Loop has returned and its pending read
// completes; a read blocked on in lasts until in yields a line or EOF.
func (r *Runner) Loop(ctx context.Context, in io.Reader, out io.Writer) error {
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	tty := isTerminal(out)
	agentPrefix, youPrefix := "Agent:", "You:"
	if tty {
		agentPrefix, youPrefix = color.CyanString("Agent:"), color.GreenString("You:")
	}

	lines, readErr := readLines(readCtx, in)
	fmt.Fprintln(out, welcomeLine)
	for {
		fmt.Fprintf(out, "\n%s ", youPrefix)
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\n"+goodbyeLine)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out, "\n"+goodbyeLine)
				return readErr()
			}
			line = l
		}
		q := strings.TrimSpace(line)
		if q == "" {
			continue
		}
		if lq := strings.ToLower(q); lq == "exit" || lq == "quit" {
			fmt.Fprintln(out, goodbyeLine)
			return nil
		}

		stop := startSpinner(out, tty)
		res := r.Turn(ctx, q)
		stop()

		if res.Invocation != nil {
			params, _ := json.Marshal(res.Invocation.Parameters)
			fmt.Fprintf(out, "\n%s Using tool '%s' with parameters %s\n", agentPrefix, res.Invocation.Tool, params)
		}
		if res.Err != nil {
			fmt.Fprintf(out, "\n%s Sorry, something went wrong. %v\n", agentPrefix, res.Err)
			continue
		}
		fmt.Fprintf(out, "\n%s %s\n", agentPrefix, res.Summary)
	}
}

// readLines feeds lines from in to the returned channel until EOF or ctx is
// done. The error func is valid once the channel is closed.
func readLines(ctx context.Context, in io.Reader) (<-chan string, func() error) {
	ch := make(chan string)
	var err error
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		err = sc.Err()
	}()
	return ch, func() error { return err }
}

func startSpinner(out io.Writer, tty bool) func() {
	if !tty {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[35], 100*time.Millisecond, spinner.WithWriter(out))
	s.Suffix = " thinking"
	s.Start()
	return s.Stop
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
