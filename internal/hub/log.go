package hub

import (
	"context"
	"log/slog"

	"go.klb.dev/clipring/internal/content"
)

// LogContent logs a clipboard event at INFO (source, kind, mime) and at DEBUG
// a text preview up to 120 chars, or the byte size for images.
func LogContent(event, source string, id uint64, c content.Content) {
	slog.Info(event, "source", source, "id", id, "kind", c.Kind, "mime", c.MIME)

	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	if c.Kind == content.Text {
		slog.Debug("clipboard item", "id", id, "preview", content.Preview(c, 120))
	} else {
		slog.Debug("clipboard item", "id", id, "mime", c.MIME, "size_bytes", len(c.Data))
	}
}
