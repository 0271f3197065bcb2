package rpc

import (
	"time"

	"go.klb.dev/clipring/internal/content"
	"go.klb.dev/clipring/internal/history"
	"go.klb.dev/clipring/internal/hub"
)

// PreviewLength bounds Entry.Preview.
const PreviewLength = 80

// Entry is a history entry on the wire. Data is only filled by Get.
type Entry struct {
	ID          uint64       `json:"id"`
	Kind        content.Kind `json:"kind"`
	MIME        string       `json:"mime"`
	Size        int          `json:"size"`
	Preview     string       `json:"preview"`
	Fingerprint string       `json:"fingerprint"`
	CreatedAt   time.Time    `json:"created_at"`
	Pinned      bool         `json:"pinned"`
	SourceApp   string       `json:"source_app,omitempty"`
	Data        []byte       `json:"data,omitempty"`
}

func toEntry(e history.Entry, withData bool) Entry {
	out := Entry{
		ID:          e.ID,
		Kind:        e.Content.Kind,
		MIME:        e.Content.MIME,
		Size:        len(e.Content.Data),
		Preview:     content.Preview(e.Content, PreviewLength),
		Fingerprint: e.Fingerprint.Short(),
		CreatedAt:   e.CreatedAt,
		Pinned:      e.Pinned,
		SourceApp:   e.SourceApp,
	}
	if withData {
		out.Data = e.Content.Data
	}
	return out
}

type ListRequest struct{}

type ListResponse struct {
	Entries []Entry `json:"entries"`
}

// IDRequest names one entry; used by Get, Pin, Unpin and Delete.
type IDRequest struct {
	ID uint64 `json:"id"`
}

type GetResponse struct {
	Entry Entry `json:"entry"`
}

type PasteRequest struct {
	ID         uint64 `json:"id"`
	TargetHint string `json:"target_hint,omitempty"`
}

// PasteResponse carries partial success: ClipboardWritten without Injected,
// with Error explaining why the keystroke was not delivered.
type PasteResponse struct {
	ClipboardWritten bool   `json:"clipboard_written"`
	Injected         bool   `json:"injected"`
	Error            string `json:"error,omitempty"`
}

type ClearRequest struct {
	KeepPinned bool `json:"keep_pinned"`
}

type ClearResponse struct {
	Removed int `json:"removed"`
}

type Empty struct{}

type StatusRequest struct{}

type SubscribeRequest struct {
	Kinds []hub.Kind `json:"kinds,omitempty"`
}
