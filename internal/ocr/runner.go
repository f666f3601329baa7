package ocr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/joseph-ayodele/billing-parser/internal/common"
)

// Runner executes an external tool. Tests swap in a stub.
type Runner interface {
	Run(ctx context.Context, name string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs tools with os/exec.
type ExecRunner struct{}

const maxLoggedStderr = 8 << 10

func (ExecRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("tool", name, "correlation_id", common.CorrelationIDFromContext(ctx))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	switch {
	case err != nil && ctx.Err() != nil:
		log.Warn("ocr.tool.canceled", "elapsed_ms", elapsed, "error", errors.Join(ctx.Err(), err))
		return stdout.Bytes(), stderr.Bytes(), ctx.Err()
	case err != nil:
		log.Error("ocr.tool.failed", "args", args, "elapsed_ms", elapsed, "error", err,
			"stderr", truncate(stderr.String(), maxLoggedStderr))
	default:
		log.Debug("ocr.tool.ok", "elapsed_ms", elapsed, "stdout_bytes", stdout.Len())
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
