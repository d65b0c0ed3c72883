package pdftext

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// maxLoggedStderr caps how much tool chatter ends up in a log record;
// tesseract in particular is noisy on low-quality scans.
const maxLoggedStderr = 4 << 10

// Runner abstracts the external OCR toolchain (pdftoppm, magick, tesseract)
// so tests can script it.
type Runner interface {
	Run(ctx context.Context, name string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

// execRunner shells out. Stdout and stderr are captured separately because
// tesseract delivers the recognized text on stdout.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	argLine := strings.Join(args, " ")
	logger.Debug("pdftext.exec.start", "cmd", name, "args", argLine)

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()

	if err != nil {
		logger.Error("pdftext.exec.failed",
			"cmd", name,
			"args", argLine,
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err,
			"stderr", truncate(stderr.String(), maxLoggedStderr))
		return stdout.Bytes(), stderr.Bytes(), err
	}

	logger.Debug("pdftext.exec.ok",
		"cmd", name,
		"duration_ms", time.Since(started).Milliseconds(),
		"stdout_bytes", stdout.Len())
	return stdout.Bytes(), stderr.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
