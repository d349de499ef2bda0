package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/repository"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/server"
)

// Fingerprint identifies the store's active document. It changes when another
// document is activated or the active one is edited, and is empty when no
// document is active.
func (l *Loader) Fingerprint(ctx context.Context) (string, error) {
	if l.store == nil {
		return "", server.NewErrorWithContext(ctx, server.ErrorTypeDatabase, "document store not initialized", "")
	}
	active, err := l.store.GetActive(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", server.WrapWithContext(ctx, err, server.ErrorTypeDatabase, "failed to load active document")
	}
	return fmt.Sprintf("%d-%s", active.ID, active.Checksum), nil
}

// Poll checks the store every interval and calls onChange when the
// fingerprint differs from last. It returns when ctx is done.
func (l *Loader) Poll(ctx context.Context, interval time.Duration, last string, onChange func(context.Context) error) {
	l.logger.Info("starting database polling", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("database polling stopped")
			return
		case <-ticker.C:
			last = l.pollOnce(ctx, last, onChange)
		}
	}
}

func (l *Loader) pollOnce(ctx context.Context, last string, onChange func(context.Context) error) string {
	current, err := l.Fingerprint(ctx)
	if err != nil {
		l.logger.Warn("database polling error", zap.Error(err))
		return last
	}
	if current == last {
		return last
	}
	l.logger.Info("active document changed, reloading tools",
		zap.String("previous", last), zap.String("current", current))
	if err := onChange(ctx); err != nil {
		l.logger.Error("failed to reload tools during polling", zap.Error(err))
		return last
	}
	return current
}
