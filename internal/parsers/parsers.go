package parsers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/russross/blackfriday/v2"

	"github.com/civicportal/portal-sync/internal/model"
)

const (
	// PreviewRunes caps the preview text of textual kinds
	PreviewRunes = 200
	// DocumentContentRunes caps the stored content of documents
	DocumentContentRunes = 500
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// itemMeta is the listing metadata every payload starts with
type itemMeta struct {
	Name       string `json:"name"`
	MimeType   string `json:"mime_type,omitempty"`
	Size       int64  `json:"size,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
	model.Links
}

func metaOf(ref model.ItemRef) itemMeta {
	m := itemMeta{
		Name:     ref.Name,
		MimeType: ref.MimeType,
		Size:     ref.Size,
		Links:    ref.Links,
	}
	if !ref.LastModified.IsZero() {
		m.ModifiedAt = ref.LastModified.UTC().Format(time.RFC3339)
	}
	return m
}

type spreadsheetPayload struct {
	itemMeta
	Columns  []string   `json:"columns"`
	Rows     [][]string `json:"rows"`
	RowCount int        `json:"row_count"`
}

type textPayload struct {
	itemMeta
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Preview string `json:"preview"`
	HTML    string `json:"html,omitempty"`
	// ExcerptHTML holds the leading blocks of HTML that fit the preview budget
	ExcerptHTML string `json:"excerpt_html,omitempty"`
}

type rowPayload struct {
	Columns []string          `json:"columns"`
	Labels  []string          `json:"labels"`
	Fields  map[string]string `json:"fields"`
}

func parseSpreadsheet(item *model.RawItem) (json.RawMessage, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(item.Content, utf8BOM)))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("spreadsheet has no header row")
	}
	if err != nil {
		return nil, err
	}

	rows := [][]string{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) > len(header) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d has %d fields, header has %d", line, len(record), len(header))
		}
		for len(record) < len(header) {
			record = append(record, "")
		}
		rows = append(rows, record)
	}

	return json.Marshal(spreadsheetPayload{
		itemMeta: metaOf(item.Ref),
		Columns:  header,
		Rows:     rows,
		RowCount: len(rows),
	})
}

func parseMarkdown(item *model.RawItem) (json.RawMessage, error) {
	if !utf8.Valid(item.Content) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}
	content := string(item.Content)

	title := strings.TrimSuffix(item.Ref.Name, path.Ext(item.Ref.Name))
	for _, line := range strings.Split(content, "\n") {
		if heading, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			title = strings.TrimSpace(heading)
			break
		}
	}

	html, excerpt := renderMarkdown(item.Content)

	return json.Marshal(textPayload{
		itemMeta:    metaOf(item.Ref),
		Title:       title,
		Content:     content,
		Preview:     preview(content),
		HTML:        html,
		ExcerptHTML: excerpt,
	})
}

// renderMarkdown returns the document as HTML plus an excerpt made of whole
// top-level blocks whose text fits PreviewRunes. A leading level-one heading is
// the title and is left out of the excerpt. Raw HTML is dropped and unsafe
// link schemes are not linked.
func renderMarkdown(content []byte) (string, string) {
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.CommonHTMLFlags | blackfriday.SkipHTML | blackfriday.Safelink,
	})
	doc := blackfriday.New(
		blackfriday.WithRenderer(renderer),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
	).Parse(content)

	var html, excerpt bytes.Buffer
	budget := PreviewRunes
	open := true
	for block := doc.FirstChild; block != nil; block = block.Next {
		var buf bytes.Buffer
		block.Walk(func(n *blackfriday.Node, entering bool) blackfriday.WalkStatus {
			return renderer.RenderNode(&buf, n, entering)
		})
		html.Write(buf.Bytes())

		if !open || (block == doc.FirstChild && block.Type == blackfriday.Heading && block.Level == 1) {
			continue
		}
		if n := textRunes(block); n <= budget {
			budget -= n
			excerpt.Write(buf.Bytes())
			continue
		}
		open = false
	}
	return html.String(), strings.TrimSpace(excerpt.String())
}

// textRunes counts the visible text of a block
func textRunes(block *blackfriday.Node) int {
	n := 0
	block.Walk(func(node *blackfriday.Node, entering bool) blackfriday.WalkStatus {
		if entering && (node.Type == blackfriday.Text || node.Type == blackfriday.Code) {
			n += utf8.RuneCount(node.Literal)
		}
		return blackfriday.GoToNext
	})
	return n
}

func parseDocument(item *model.RawItem) (json.RawMessage, error) {
	content := strings.ToValidUTF8(string(bytes.TrimPrefix(item.Content, utf8BOM)), "")
	content = strings.TrimSpace(content)

	return json.Marshal(textPayload{
		itemMeta: metaOf(item.Ref),
		Content:  truncateRunes(content, DocumentContentRunes),
		Preview:  preview(content),
	})
}

func parseText(item *model.RawItem) (json.RawMessage, error) {
	if !utf8.Valid(item.Content) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}
	content := string(item.Content)

	return json.Marshal(textPayload{
		itemMeta: metaOf(item.Ref),
		Content:  content,
		Preview:  preview(content),
	})
}

func parseMetadata(item *model.RawItem) (json.RawMessage, error) {
	return json.Marshal(metaOf(item.Ref))
}

func parseVideo(item *model.RawItem) (json.RawMessage, error) {
	return json.Marshal(struct {
		itemMeta
		HasThumbnail bool `json:"has_thumbnail"`
	}{
		itemMeta:     metaOf(item.Ref),
		HasThumbnail: item.Ref.Links.Thumbnail != "",
	})
}

func parseRow(item *model.RawItem) (json.RawMessage, error) {
	var row model.RowContent
	if err := json.Unmarshal(item.Content, &row); err != nil {
		return nil, fmt.Errorf("invalid row content: %w", err)
	}
	if len(row.Columns) == 0 {
		return nil, fmt.Errorf("row has no columns")
	}
	if len(row.Values) > len(row.Columns) {
		return nil, fmt.Errorf("row has %d values for %d columns", len(row.Values), len(row.Columns))
	}

	payload := rowPayload{
		Columns: make([]string, len(row.Columns)),
		Labels:  row.Columns,
		Fields:  make(map[string]string, len(row.Columns)),
	}
	for i, label := range row.Columns {
		key := model.NormalizeFieldName(label)
		if key == "" {
			key = fmt.Sprintf("column_%d", i+1)
		}
		base := key
		for n := 2; ; n++ {
			if _, taken := payload.Fields[key]; !taken {
				break
			}
			key = fmt.Sprintf("%s_%d", base, n)
		}

		value := ""
		if i < len(row.Values) {
			value = row.Values[i]
		}
		payload.Columns[i] = key
		payload.Fields[key] = value
	}

	return json.Marshal(payload)
}

// preview collapses whitespace and truncates to PreviewRunes
func preview(s string) string {
	return truncateRunes(strings.Join(strings.Fields(s), " "), PreviewRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "..."
}
