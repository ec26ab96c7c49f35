package driven

import (
	"context"

	"github.com/ericfisherdev/recibos/internal/domain/model"
)

// DocumentStore persists PDF bytes under a file name and returns the final path.
type DocumentStore interface {
	Save(ctx context.Context, filename string, content []byte) (string, error)
}

// DocumentCatalog records every saved document.
type DocumentCatalog interface {
	Record(ctx context.Context, rec model.DocumentRecord) error
	ListBySupply(ctx context.Context, supplyID string) ([]model.DocumentRecord, error)
	ListAll(ctx context.Context) ([]model.DocumentRecord, error)
}

// DocumentOpener hands a saved file to the system URL handler.
type DocumentOpener interface {
	// Available reports whether opening can be attempted at all.
	Available() bool
	Open(ctx context.Context, path string) error
}

// DocumentSharer hands a saved file to a share target. Implementations
// return model.ErrShareUnavailable when no target exists. The server binary
// has no share target and passes a nil sharer; embedding clients that do
// (a mobile shell, a desktop share sheet) supply their own.
type DocumentSharer interface {
	Available(ctx context.Context) (bool, error)
	Share(ctx context.Context, path, title string) error
}

// PDFTool inspects fetched documents and renders local ones.
type PDFTool interface {
	// PageCount validates content as a PDF and returns its page count.
	PageCount(content []byte) (int, error)
	// RenderText lays lines out as a PDF, one line per paragraph.
	RenderText(lines []string) ([]byte, error)
}
