package gpgkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// waitDelay is how long output draining may continue after ctx ends. Helpers
// that left gpg's process group can hold the pipes open past the kill; once
// it elapses the pipes are closed from this side.
const waitDelay = 5 * time.Second

// makeArgs builds the argument vector for one gpg call: fixed protocol flags,
// home and keyring selection, passphrase plumbing, global options, then the
// sanitized per-call arguments.
func (g *GPG) makeArgs(args []string, passphrase bool) []string {
	argv := []string{"--status-fd", "2", "--no-tty"}
	if g.home != "" {
		argv = append(argv, "--homedir", g.home)
	}
	if g.keyring != "" {
		argv = append(argv, "--no-default-keyring", "--keyring", g.keyring)
	}
	if g.secretKeyring != "" {
		argv = append(argv, "--secret-keyring", g.secretKeyring)
	}
	if passphrase {
		argv = append(argv, "--batch", "--passphrase-fd", "0")
		if g.modern {
			argv = append(argv, "--pinentry-mode", "loopback")
		}
	}
	if g.useAgent {
		argv = append(argv, "--use-agent")
	}
	argv = append(argv, g.options...)
	return append(argv, g.sanitizer.Sanitize(args...)...)
}

// run executes gpg once and fills result. The passphrase, if any, is written
// to stdin ahead of input. Input feeding, stdout draining and status parsing
// run concurrently; run returns only after all three finish and gpg exits.
// A broken pipe on stdin is logged, not returned. A non-zero exit is recorded
// in the result's ExitCode and is not an error. If ctx ends first, the gpg
// process group is killed and the context error is returned.
func (g *GPG) run(ctx context.Context, args []string, input io.Reader, result Result, passphrase string) error {
	if strings.ContainsAny(passphrase, "\r\n") {
		return fmt.Errorf("%w: passphrase contains a line break", ErrInvalidArgument)
	}
	argv := g.makeArgs(args, passphrase != "")
	g.logger.Debug("running gpg", "binary", g.binary, "args", quoteArgs(argv))

	cmd := exec.CommandContext(ctx, g.binary, argv...) //nolint:gosec // binary resolved in New, args sanitized
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// gpg may fork helpers; kill the whole group.
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", g.binary, err)
	}

	drained := make(chan struct{})
	defer close(drained)
	stop := context.AfterFunc(ctx, func() {
		select {
		case <-drained:
		case <-time.After(waitDelay):
			_ = stdout.Close()
			_ = stderr.Close()
		}
	})
	defer stop()

	var (
		eg         errgroup.Group
		data       []byte
		transcript string
	)
	eg.Go(func() error {
		if passphrase != "" {
			if _, err := io.WriteString(stdin, passphrase+"\n"); err != nil {
				g.logger.Warn("error sending passphrase", "error", err)
				_ = stdin.Close()
				return nil
			}
		}
		copyData(input, stdin, g.logger)
		return nil
	})
	eg.Go(func() error {
		var err error
		data, err = io.ReadAll(stdout)
		if err != nil {
			return fmt.Errorf("reading output: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		transcript, err = readStatus(stderr, result, g.logger)
		return err
	})

	groupErr := eg.Wait()
	waitErr := cmd.Wait()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	result.setOutput(Output{Data: data, Stderr: transcript, ExitCode: exitCode})
	g.logger.Debug("gpg finished", "exit_code", exitCode, "output_bytes", len(data))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("running %s: %w", g.binary, ctxErr)
	}
	if groupErr != nil {
		return groupErr
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return fmt.Errorf("waiting for %s: %w", g.binary, waitErr)
	}
	return nil
}

// quoteArgs renders argv for logging.
func quoteArgs(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = ShellQuote(a)
	}
	return strings.Join(quoted, " ")
}
