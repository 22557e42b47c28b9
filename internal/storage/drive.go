package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"drive-ocr/internal/internalerr"
)

// ImageEntry is one image file found in the source folder.
type ImageEntry struct {
	ID         string
	Name       string
	MimeType   string
	// Properties are the file's appProperties at listing time.
	Properties map[string]string
}

const listFields googleapi.Field = "nextPageToken, files(id, name, mimeType, appProperties)"

// Drive wraps the Drive v3 files and permissions endpoints the pipeline needs.
type Drive struct {
	svc *drive.Service
}

func New(ctx context.Context, opts ...option.ClientOption) (*Drive, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}
	return &Drive{svc: svc}, nil
}

// ImageQuery builds the listing query for image files directly inside folderID.
func ImageQuery(folderID string) string {
	return fmt.Sprintf("'%s' in parents and mimeType contains 'image/' and trashed = false", escapeQuery(folderID))
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// List returns at most max image entries of folderID in listing order.
func (d *Drive) List(ctx context.Context, folderID string, max int) ([]ImageEntry, error) {
	if max <= 0 {
		return nil, nil
	}
	var (
		out   []ImageEntry
		token string
	)
	for len(out) < max {
		call := d.svc.Files.List().
			Q(ImageQuery(folderID)).
			Fields(listFields).
			PageSize(int64(max - len(out))).
			Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %w", internalerr.ErrSourceUnavailable, folderID, err)
		}
		for _, f := range res.Files {
			if !strings.HasPrefix(f.MimeType, "image/") {
				continue
			}
			out = append(out, ImageEntry{ID: f.Id, Name: f.Name, MimeType: f.MimeType, Properties: f.AppProperties})
			if len(out) == max {
				break
			}
		}
		if res.NextPageToken == "" {
			break
		}
		token = res.NextPageToken
	}
	return out, nil
}

// Fetch downloads the raw content of a file.
func (d *Drive) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := d.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", fileID, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ParentDiff returns the parents to remove so that a file ends up with exactly {dest}.
// add is empty when dest is already a parent.
func ParentDiff(parents []string, dest string) (add string, remove []string) {
	add = dest
	for _, p := range parents {
		if p == dest {
			add = ""
			continue
		}
		remove = append(remove, p)
	}
	return add, remove
}

// Relocate moves a file into dest, detaching it from every other parent.
func (d *Drive) Relocate(ctx context.Context, fileID, dest string) error {
	f, err := d.svc.Files.Get(fileID).Fields("id, parents").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: read parents of %s: %w", internalerr.ErrRelocation, fileID, err)
	}
	add, remove := ParentDiff(f.Parents, dest)
	if add == "" && len(remove) == 0 {
		return nil
	}
	call := d.svc.Files.Update(fileID, &drive.File{}).Fields("id, parents").Context(ctx)
	if add != "" {
		call = call.AddParents(add)
	}
	if len(remove) > 0 {
		call = call.RemoveParents(strings.Join(remove, ","))
	}
	if _, err := call.Do(); err != nil {
		return fmt.Errorf("%w: move %s to %s: %w", internalerr.ErrRelocation, fileID, dest, err)
	}
	return nil
}

// Publish grants anyone-with-the-link read access and returns the view link.
func (d *Drive) Publish(ctx context.Context, fileID string) (string, error) {
	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if _, err := d.svc.Permissions.Create(fileID, perm).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("%w: share %s: %w", internalerr.ErrPublish, fileID, err)
	}
	f, err := d.svc.Files.Get(fileID).Fields("id, webViewLink").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: link of %s: %w", internalerr.ErrPublish, fileID, err)
	}
	if f.WebViewLink == "" {
		return "", fmt.Errorf("%w: %s has no view link", internalerr.ErrPublish, fileID)
	}
	return f.WebViewLink, nil
}
