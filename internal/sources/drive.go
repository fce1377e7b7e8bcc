package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/civicportal/portal-sync/internal/model"
)

const driveListFields = "nextPageToken, files(id, name, mimeType, modifiedTime, size, md5Checksum, " +
	"webViewLink, webContentLink, thumbnailLink)"

// driveConnector lists and fetches files of a Google Drive folder
type driveConnector struct {
	service  *drive.Service
	limiter  *rate.Limiter
	maxBytes int64
}

// NewDriveConnector creates a read-only Drive connector
func NewDriveConnector(
	ctx context.Context,
	limiter *rate.Limiter,
	maxBytes int64,
	opts ...option.ClientOption,
) (Connector, error) {
	opts = append([]option.ClientOption{option.WithScopes(drive.DriveReadonlyScope)}, opts...)
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, &ConfigError{Reason: "failed to create Drive client", Err: err}
	}

	return &driveConnector{
		service:  service,
		limiter:  limiter,
		maxBytes: maxBytes,
	}, nil
}

// driveQueryEscaper escapes backslashes and quotes in one pass so an ID
// cannot close the quoted literal early
var driveQueryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func driveListQuery(folderID string) string {
	return fmt.Sprintf("'%s' in parents and trashed = false and mimeType != '%s'",
		driveQueryEscaper.Replace(folderID), MimeGoogleFolder)
}

// List returns the non-folder, non-trashed files directly inside the folder
func (c *driveConnector) List(ctx context.Context, containerID string) ([]model.ItemRef, error) {
	if containerID == "" {
		return nil, &ConfigError{Reason: "folder ID is empty"}
	}

	query := driveListQuery(containerID)

	var items []model.ItemRef
	pageToken := ""
	for {
		if err := wait(ctx, c.limiter, "list", containerID); err != nil {
			return nil, err
		}

		call := c.service.Files.List().
			Q(query).
			Fields(driveListFields).
			PageSize(1000).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, classifyGoogleError("list", containerID, err, true)
		}

		for _, f := range page.Files {
			items = append(items, driveItemRef(f))
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return items, nil
}

// Fetch exports Google Docs as text and Sheets as CSV, downloads text files and
// returns every other kind with metadata only
func (c *driveConnector) Fetch(ctx context.Context, ref model.ItemRef) (*model.RawItem, error) {
	item := &model.RawItem{Ref: ref}
	if !hasTextContent(ref) {
		return item, nil
	}

	if err := wait(ctx, c.limiter, "fetch", ref.ExternalID); err != nil {
		return nil, err
	}

	var (
		resp *http.Response
		err  error
	)
	switch ref.MimeType {
	case MimeGoogleDoc:
		resp, err = c.service.Files.Export(ref.ExternalID, MimePlain).Context(ctx).Download()
	case MimeGoogleSheet:
		resp, err = c.service.Files.Export(ref.ExternalID, MimeCSV).Context(ctx).Download()
	default:
		resp, err = c.service.Files.Get(ref.ExternalID).SupportsAllDrives(true).Context(ctx).Download()
	}
	if err != nil {
		return nil, classifyGoogleError("fetch", ref.ExternalID, err, false)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Debug("Failed to close Drive response body", "id", ref.ExternalID, "error", cerr)
		}
	}()

	content, err := readCapped(resp.Body, c.maxBytes)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrContentTooLarge) {
			return nil, fmt.Errorf("failed to read %s: %w", ref.ExternalID, err)
		}
		return nil, &TransientFetchError{Op: "fetch", ID: ref.ExternalID, Err: err}
	}
	item.Content = content
	return item, nil
}

func driveItemRef(f *drive.File) model.ItemRef {
	modified, err := time.Parse(time.RFC3339, f.ModifiedTime)
	if err != nil {
		slog.Warn("Unparseable Drive modifiedTime", "id", f.Id, "value", f.ModifiedTime)
	}

	return model.ItemRef{
		ExternalID:   f.Id,
		Name:         f.Name,
		Kind:         KindFor(f.MimeType, f.Name),
		MimeType:     f.MimeType,
		LastModified: modified.UTC(),
		Size:         f.Size,
		Checksum:     f.Md5Checksum,
		Links: model.Links{
			View:      f.WebViewLink,
			Download:  f.WebContentLink,
			Thumbnail: f.ThumbnailLink,
		},
	}
}
