package storage

import (
	"context"
	"fmt"

	"google.golang.org/api/drive/v3"

	"drive-ocr/internal/internalerr"
)

// AppendedProperty is the custom file property recording which document a file's
// text was appended to.
const AppendedProperty = "driveocrAppendedTo"

// MarkerLedger keeps the processed marker on the Drive file itself, so it travels
// with the file and needs no extra storage.
type MarkerLedger struct {
	d *Drive
}

func NewMarkerLedger(d *Drive) *MarkerLedger { return &MarkerLedger{d: d} }

func (m *MarkerLedger) Appended(ctx context.Context, fileID string) (string, bool, error) {
	f, err := m.d.svc.Files.Get(fileID).Fields("id, appProperties").Context(ctx).Do()
	if err != nil {
		return "", false, fmt.Errorf("%w: read marker of %s: %w", internalerr.ErrLedger, fileID, err)
	}
	docID, ok := f.AppProperties[AppendedProperty]
	return docID, ok && docID != "", nil
}

// FromListing reads the marker from the properties List already returned,
// without another files.get.
func (m *MarkerLedger) FromListing(e ImageEntry) (string, bool) {
	docID := e.Properties[AppendedProperty]
	return docID, docID != ""
}

func (m *MarkerLedger) MarkAppended(ctx context.Context, fileID, docID string) error {
	patch := &drive.File{AppProperties: map[string]string{AppendedProperty: docID}}
	if _, err := m.d.svc.Files.Update(fileID, patch).Fields("id").Context(ctx).Do(); err != nil {
		return fmt.Errorf("%w: write marker of %s: %w", internalerr.ErrLedger, fileID, err)
	}
	return nil
}
