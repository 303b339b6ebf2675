package cleaner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"scour/internal/engine"
)

const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"

	maxStderrBytes = 4 << 10
)

var (
	ErrNoCommand     = errors.New("exec cleaner: empty command")
	ErrNoPlaceholder = errors.New("exec cleaner: command must reference {input} and {output}")
)

// Exec runs an external program once per file. The argv may reference the
// file pair through {input} and {output}; the program writes to a temp path
// that replaces the destination only when it exits successfully.
type Exec struct {
	argv      []string
	waitDelay time.Duration
	logger    *slog.Logger
}

func NewExec(argv []string, logger *slog.Logger) (*Exec, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, ErrNoCommand
	}
	joined := strings.Join(argv[1:], " ")
	if !strings.Contains(joined, InputPlaceholder) || !strings.Contains(joined, OutputPlaceholder) {
		return nil, ErrNoPlaceholder
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exec{
		argv:      append([]string(nil), argv...),
		waitDelay: 2 * time.Second,
		logger:    logger.With(slog.String("component", "exec"), slog.String("command", argv[0])),
	}, nil
}

func (e *Exec) Clean(ctx context.Context, input, output string) (engine.Outcome, error) {
	start := time.Now()

	info, err := os.Stat(input)
	if err != nil {
		return engine.Outcome{}, err
	}

	out, err := stageOutput(output, info.Mode())
	if err != nil {
		return engine.Outcome{}, err
	}
	defer out.discard()
	// the program opens the path itself
	if err := out.file.Close(); err != nil {
		return engine.Outcome{}, err
	}

	args := expandArgs(e.argv[1:], input, out.Path())
	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	cmd.WaitDelay = e.waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, n: maxStderrBytes}

	e.logger.Debug("running", slog.String("input", input), slog.Any("args", args))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return engine.Outcome{}, fmt.Errorf("killed: %w", ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return engine.Outcome{}, fmt.Errorf("%s: %w: %s", e.argv[0], err, msg)
		}
		return engine.Outcome{}, fmt.Errorf("%s: %w", e.argv[0], err)
	}

	if err := replaceFile(out.Path(), output); err != nil {
		return engine.Outcome{}, err
	}
	after, err := fileSize(output)
	if err != nil {
		return engine.Outcome{}, err
	}

	return engine.Outcome{
		SizeBefore: info.Size(),
		SizeAfter:  after,
		Elapsed:    time.Since(start),
	}, nil
}

func expandArgs(argv []string, input, output string) []string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		arg = strings.ReplaceAll(arg, InputPlaceholder, input)
		out[i] = strings.ReplaceAll(arg, OutputPlaceholder, output)
	}
	return out
}

// limitedWriter keeps the first n bytes and silently drops the rest.
type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return len(p), nil
	}
	keep := p
	if len(keep) > l.n {
		keep = keep[:l.n]
	}
	n, err := l.w.Write(keep)
	l.n -= n
	if err != nil {
		return n, err
	}
	return len(p), nil
}
