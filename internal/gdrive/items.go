package gdrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Drive MIME types.
const (
	FolderMimeType       = "application/vnd.google-apps.folder"
	nativeMimeTypePrefix = "application/vnd.google-apps."
)

// itemFields is the field mask requested for every item.
const itemFields = "id, name, mimeType, size"

// listPageSize is the largest page the files.list endpoint accepts.
const listPageSize = 1000

// Kind distinguishes folders, binary files, and provider-native documents.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
	KindNativeDocument
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindNativeDocument:
		return "native"
	default:
		return "file"
	}
}

// Item is a normalized Drive item. Path is filled in by the Enumerator and
// is relative to the submitted folder (or just Name for a single file).
type Item struct {
	ID       string
	Name     string
	MimeType string
	Kind     Kind
	Size     int64
	Path     string
}

// IsFolder reports whether the item is a folder.
func (i *Item) IsFolder() bool {
	return i.Kind == KindFolder
}

// driveFile is the JSON shape of a files resource. Drive encodes int64
// fields as strings.
type driveFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,string,omitempty"`
}

type fileList struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

func (f *driveFile) toItem() Item {
	it := Item{ID: f.ID, Name: f.Name, MimeType: f.MimeType, Size: f.Size}

	switch {
	case f.MimeType == FolderMimeType:
		it.Kind = KindFolder
		it.Size = 0
	case strings.HasPrefix(f.MimeType, nativeMimeTypePrefix):
		it.Kind = KindNativeDocument
		it.Size = 0
	default:
		it.Kind = KindFile
	}

	return it
}

// GetItem retrieves metadata for a single item.
func (c *Client) GetItem(ctx context.Context, id string) (*Item, error) {
	c.logger.Debug("getting item", slog.String("item_id", id))

	q := url.Values{}
	q.Set("fields", itemFields)
	q.Set("supportsAllDrives", "true")

	var f driveFile
	if err := c.getJSON(ctx, "/files/"+url.PathEscape(id), q, &f); err != nil {
		return nil, err
	}

	it := f.toItem()

	return &it, nil
}

// ListChildren returns all non-trashed children of a folder, following
// nextPageToken until the listing is exhausted.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]Item, error) {
	c.logger.Debug("listing children", slog.String("folder_id", folderID))

	var (
		items     []Item
		pageToken string
		pages     int
	)

	for {
		q := url.Values{}
		q.Set("q", fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID)))
		q.Set("fields", "nextPageToken, files("+itemFields+")")
		q.Set("orderBy", "folder,name")
		q.Set("pageSize", fmt.Sprint(listPageSize))
		q.Set("supportsAllDrives", "true")
		q.Set("includeItemsFromAllDrives", "true")

		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page fileList
		if err := c.getJSON(ctx, "/files", q, &page); err != nil {
			return nil, fmt.Errorf("gdrive: listing children of %s: %w", folderID, err)
		}

		for i := range page.Files {
			items = append(items, page.Files[i].toItem())
		}

		pages++

		if page.NextPageToken == "" {
			break
		}

		pageToken = page.NextPageToken
	}

	c.logger.Debug("listed children",
		slog.String("folder_id", folderID),
		slog.Int("count", len(items)),
		slog.Int("pages", pages),
	)

	return items, nil
}

// OpenContent starts a download of an item's bytes. It returns the response
// body and the Content-Length (-1 when unknown). Only the request/response
// cycle is retried; failures while reading the stream belong to the caller.
func (c *Client) OpenContent(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	c.logger.Debug("opening content", slog.String("item_id", id))

	q := url.Values{}
	q.Set("alt", "media")
	q.Set("supportsAllDrives", "true")

	resp, err := c.Do(ctx, http.MethodGet, "/files/"+url.PathEscape(id), q)
	if err != nil {
		return nil, 0, err
	}

	return resp.Body, resp.ContentLength, nil
}

// escapeQuery escapes a value for use inside a single-quoted Drive query.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
