package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Archiver is a domain.EventSink that stores every terminal execution record
// as a JSON object keyed by date, game and execution ID.
type Archiver struct {
	writer domain.BlobWriter
	prefix string
	logger *slog.Logger
}

// NewArchiver creates an Archiver writing under prefix.
func NewArchiver(writer domain.BlobWriter, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		prefix: prefix,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// OnOpportunity implements domain.EventSink. Opportunities are not archived.
func (a *Archiver) OnOpportunity(context.Context, domain.ArbitrageOpportunity) error { return nil }

// OnExecutionTerminal implements domain.EventSink.
func (a *Archiver) OnExecutionTerminal(ctx context.Context, rec domain.ExecutionRecord) error {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal execution %s: %w", rec.ID, err)
	}
	key := a.Key(rec)
	if err := a.writer.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return err
	}
	a.logger.DebugContext(ctx, "execution archived", slog.String("key", key))
	return nil
}

// Key returns the object key for rec.
func (a *Archiver) Key(rec domain.ExecutionRecord) string {
	day := rec.CreatedAt.UTC().Format("2006/01/02")
	return path.Join(a.prefix, "executions", day, string(rec.GameID), rec.ID+".json")
}

var _ domain.EventSink = (*Archiver)(nil)
