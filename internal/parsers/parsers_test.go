package parsers

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicportal/portal-sync/internal/model"
)

func rawItem(kind model.Kind, name, content string) *model.RawItem {
	return &model.RawItem{
		Ref: model.ItemRef{
			ExternalID:   "item-1",
			Name:         name,
			Kind:         kind,
			LastModified: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			Size:         int64(len(content)),
		},
		Content: []byte(content),
	}
}

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestRegistry_Parse(t *testing.T) {
	t.Parallel()

	registry := NewDefaultRegistry()

	tests := []struct {
		name    string
		item    *model.RawItem
		check   func(t *testing.T, payload map[string]any)
		wantErr bool
	}{
		{
			name: "spreadsheet pads short rows",
			item: rawItem(model.KindSpreadsheet, "budget.csv", "\ufeffDept,Amount,Note\nParks,100\nRoads,250,paving\n"),
			check: func(t *testing.T, p map[string]any) {
				t.Helper()
				assert.Equal(t, []any{"Dept", "Amount", "Note"}, p["columns"])
				assert.Equal(t, float64(2), p["row_count"])
				assert.Equal(t, []any{"Parks", "100", ""}, p["rows"].([]any)[0])
			},
		},
		{
			name:    "spreadsheet with extra fields is malformed",
			item:    rawItem(model.KindSpreadsheet, "bad.csv", "a,b\n1,2,3\n"),
			wantErr: true,
		},
		{
			name:    "empty spreadsheet is malformed",
			item:    rawItem(model.KindSpreadsheet, "empty.csv", ""),
			wantErr: true,
		},
		{
			name:    "spreadsheet with a bare quote is malformed",
			item:    rawItem(model.KindSpreadsheet, "quote.csv", "a,b\n1,\"x\"y\n"),
			wantErr: true,
		},
		{
			name: "markdown title comes from the first heading",
			item: rawItem(model.KindMarkdown, "post.md", "intro\n# Road Closures\n\nMain St is **closed**.\n<script>alert(1)</script>\n"),
			check: func(t *testing.T, p map[string]any) {
				t.Helper()
				assert.Equal(t, "Road Closures", p["title"])
				assert.Contains(t, p["html"], "<strong>closed</strong>")
				assert.NotContains(t, p["html"], "<script>")
				assert.Equal(t, "intro # Road Closures Main St is **closed**. <script>alert(1)</script>", p["preview"])
			},
		},
		{
			name: "markdown excerpt keeps whole leading blocks",
			item: rawItem(model.KindMarkdown, "closures.md",
				"# Road Closures\n\nMain St is **closed** until [Friday](javascript:void).\n\n<div>raw</div>\n\n"+
					strings.Repeat("detour ", 40)+"\n"),
			check: func(t *testing.T, p map[string]any) {
				t.Helper()
				excerpt, ok := p["excerpt_html"].(string)
				require.True(t, ok)
				assert.True(t, strings.HasPrefix(excerpt, "<p>Main St is <strong>closed</strong> until "), excerpt)
				assert.NotContains(t, excerpt, "<h1>")
				assert.NotContains(t, excerpt, "javascript:")
				assert.NotContains(t, excerpt, "<div>")
				assert.NotContains(t, excerpt, "detour")
				assert.Contains(t, p["html"], "<h1>Road Closures</h1>")
				assert.Contains(t, p["html"], "detour detour")
			},
		},
		{
			name: "markdown without a short leading block has no excerpt",
			item: rawItem(model.KindMarkdown, "long.md", strings.Repeat("detour ", 40)),
			check: func(t *testing.T, p map[string]any) {
				t.Helper()
				assert.NotContains(t, p, "excerpt_html")
			},
		},
		{
			name: "markdown title falls back to the item name",
			item: rawItem(model.KindMarkdown, "weekly-update.md", "no heading"),
			check: func(t *testing.T, p map[string]any) {
				t.Helper()
				assert.Equal(t, "weekly-update", p["title"])
			},
		},
		{
			name: "document content and preview are capped",
			item: rawItem(model.KindDocument, "Minutes", strings.Repeat("word ", 200)),
			check: func(t *testing.T, p map[string]any) {
				t.Helper()
				assert.LessOrEqual(t, len([]rune(p["content"].(string))), DocumentContentRunes+3)
				assert.True(t, strings.HasSuffix(p["content"].(string), "..."))
				assert.True(t, strings.HasSuffix(p["preview"].(string), "..."))
				assert.LessOrEqual(t, len([]rune(p["preview"].(string))), PreviewRunes+3)
			},
		},
		{
			name: "document without content keeps metadata",
			item: rawItem(model.KindDocument, "Minutes.docx", ""),
			check: func(t *testing.T, p map[string]any) {
				t.Helper()
				assert.Equal(t, "Minutes.docx", p["name"])
				assert.Equal(t, "", p["content"])
			},
		},
		{
			name:    "text with invalid UTF-8 is malformed",
			item:    rawItem(model.KindText, "notes.txt", "\xff\xfe"),
			wantErr: true,
		},
		{
			name: "pdf carries metadata only",
			item: rawItem(model.KindPDF, "agenda.pdf", ""),
			check: func(t *testing.T, p map[string]any) {
				t.Helper()
				assert.Equal(t, "agenda.pdf", p["name"])
				assert.Equal(t, "2024-03-01T10:00:00Z", p["modified_at"])
				assert.NotContains(t, p, "content")
			},
		},
		{
			name: "row fields are keyed by snake_case header",
			item: rawItem(model.KindRow, "Ann", `{"columns":["Name","Job Title","Name",""],"values":["Ann","Clerk","A. Lee"]}`),
			check: func(t *testing.T, p map[string]any) {
				t.Helper()
				assert.Equal(t, []any{"name", "job_title", "name_2", "column_4"}, p["columns"])
				assert.Equal(t, map[string]any{
					"name":      "Ann",
					"job_title": "Clerk",
					"name_2":    "A. Lee",
					"column_4":  "",
				}, p["fields"])
			},
		},
		{
			name:    "row that is not JSON is malformed",
			item:    rawItem(model.KindRow, "x", "not json"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			payload, err := registry.Parse(tt.item.Ref.Kind, tt.item)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrParse)
				var malformed *MalformedContentError
				require.True(t, errors.As(err, &malformed))
				assert.Equal(t, "item-1", malformed.ExternalID)
				return
			}
			require.NoError(t, err)
			tt.check(t, decode(t, payload))
		})
	}
}

func TestRegistry_Deterministic(t *testing.T) {
	t.Parallel()

	registry := NewDefaultRegistry()
	for _, kind := range registry.Kinds() {
		content := "# Title\nbody"
		if kind == model.KindRow {
			content = `{"columns":["b","a"],"values":["2","1"]}`
		}
		item := rawItem(kind, "item", content)
		item.Ref.Links = model.Links{View: "https://view", Thumbnail: "https://thumb"}

		first, err := registry.Parse(kind, item)
		require.NoError(t, err, kind)
		second, err := registry.Parse(kind, item)
		require.NoError(t, err, kind)
		assert.Equal(t, string(first), string(second), kind)
	}
}

func TestRegistry_UnsupportedKind(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry().Parse(model.KindPDF, rawItem(model.KindPDF, "a.pdf", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)

	var unsupported *UnsupportedKindError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, model.KindPDF, unsupported.Kind)
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register("calendar", ParserFunc(func(item *model.RawItem) (json.RawMessage, error) {
		return json.RawMessage(`{"events":0}`), nil
	}))
	registry.Register("broken", ParserFunc(func(*model.RawItem) (json.RawMessage, error) {
		return nil, errors.New("boom")
	}))

	payload, err := registry.Parse("calendar", rawItem("calendar", "cal.ics", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"events":0}`, string(payload))

	_, err = registry.Parse("broken", rawItem("broken", "x", ""))
	assert.ErrorIs(t, err, ErrParse, "plain parser errors are wrapped as malformed content")
	assert.Equal(t, []model.Kind{"broken", "calendar"}, registry.Kinds())
}

func TestVideoPayload(t *testing.T) {
	t.Parallel()

	item := rawItem(model.KindVideo, "Council Meeting", "")
	item.Ref.MimeType = "video/mp4"
	item.Ref.Links = model.Links{View: "https://view/v1", Thumbnail: "https://thumb/v1"}

	payload, err := NewDefaultRegistry().Parse(model.KindVideo, item)
	require.NoError(t, err)

	p := decode(t, payload)
	assert.Equal(t, true, p["has_thumbnail"])
	assert.Equal(t, "https://thumb/v1", p["thumbnail_link"])
	assert.Equal(t, "https://view/v1", p["web_view_link"])
}
