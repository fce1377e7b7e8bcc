package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/civicportal/portal-sync/internal/model"
)

// DefaultSheetRange is read when a container does not name a range
const DefaultSheetRange = "Sheet1"

// nameColumns are checked in order for a row's display name
var nameColumns = []string{"name", "title", "job_title", "event", "headline", "subject"}

// sheetsConnector turns each data row of a spreadsheet range into an item
type sheetsConnector struct {
	service *sheets.Service
	limiter *rate.Limiter

	mu       sync.Mutex
	snapshot map[string][]byte
}

// NewSheetsConnector creates a read-only Sheets connector
func NewSheetsConnector(ctx context.Context, limiter *rate.Limiter, opts ...option.ClientOption) (Connector, error) {
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}, opts...)
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, &ConfigError{Reason: "failed to create Sheets client", Err: err}
	}

	return &sheetsConnector{
		service:  service,
		limiter:  limiter,
		snapshot: make(map[string][]byte),
	}, nil
}

// ParseSheetContainer splits "spreadsheetId!Range" into its parts
func ParseSheetContainer(containerID string) (spreadsheetID, readRange string) {
	spreadsheetID, readRange, _ = strings.Cut(containerID, "!")
	if readRange == "" {
		readRange = DefaultSheetRange
	}
	return spreadsheetID, readRange
}

// List reads the range and returns one item per data row.
// The rows are kept as the snapshot that Fetch serves from.
func (c *sheetsConnector) List(ctx context.Context, containerID string) ([]model.ItemRef, error) {
	spreadsheetID, readRange := ParseSheetContainer(containerID)
	if spreadsheetID == "" {
		return nil, &ConfigError{ContainerID: containerID, Reason: "spreadsheet ID is empty"}
	}

	if err := wait(ctx, c.limiter, "list", containerID); err != nil {
		return nil, err
	}

	resp, err := c.service.Spreadsheets.Values.Get(spreadsheetID, readRange).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyGoogleError("list", containerID, err, true)
	}

	items, snapshot := rowsToItems(resp.Values)

	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()

	return items, nil
}

// Fetch returns the row content captured by the last List
func (c *sheetsConnector) Fetch(_ context.Context, ref model.ItemRef) (*model.RawItem, error) {
	c.mu.Lock()
	content, ok := c.snapshot[ref.ExternalID]
	c.mu.Unlock()

	if !ok {
		return nil, &NotFoundError{ExternalID: ref.ExternalID}
	}
	return &model.RawItem{Ref: ref, Content: content}, nil
}

// rowsToItems converts a value grid whose first row is the header into row items.
// Rows are identified by their "id" column when it is filled in, and by their
// sheet row number otherwise.
func rowsToItems(values [][]any) ([]model.ItemRef, map[string][]byte) {
	snapshot := make(map[string][]byte)
	if len(values) == 0 {
		return nil, snapshot
	}

	header := make([]string, len(values[0]))
	idColumn, nameColumn := -1, -1
	for i, cell := range values[0] {
		header[i] = strings.TrimSpace(fmt.Sprint(cell))
	}
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = model.NormalizeFieldName(h)
		if normalized[i] == "id" && idColumn < 0 {
			idColumn = i
		}
	}
	for _, candidate := range nameColumns {
		for i, n := range normalized {
			if n == candidate {
				nameColumn = i
				break
			}
		}
		if nameColumn >= 0 {
			break
		}
	}

	items := make([]model.ItemRef, 0, len(values)-1)
	for r, raw := range values[1:] {
		rowNumber := r + 2

		row := make([]string, len(header))
		empty := true
		for i := range header {
			if i < len(raw) {
				row[i] = strings.TrimSpace(fmt.Sprint(raw[i]))
			}
			if row[i] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}

		externalID := fmt.Sprintf("row-%d", rowNumber)
		if idColumn >= 0 && row[idColumn] != "" {
			externalID = row[idColumn]
		}
		if _, dup := snapshot[externalID]; dup {
			slog.Warn("Duplicate row id in spreadsheet, falling back to row number",
				"id", externalID,
				"row", rowNumber)
			externalID = fmt.Sprintf("row-%d", rowNumber)
		}

		content, err := json.Marshal(model.RowContent{Columns: header, Values: row})
		if err != nil {
			continue
		}
		snapshot[externalID] = content

		name := externalID
		if nameColumn >= 0 && row[nameColumn] != "" {
			name = row[nameColumn]
		}

		items = append(items, model.ItemRef{
			ExternalID: externalID,
			Name:       name,
			Kind:       model.KindRow,
			MimeType:   MimeRow,
			Size:       int64(len(content)),
			Checksum:   checksum(content),
		})
	}

	return items, snapshot
}
