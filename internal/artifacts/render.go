package artifacts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/civicportal/portal-sync/internal/model"
)

// Template types a folder can render with
const (
	TemplateDocuments = "documents"
	TemplateStaff     = "staff"
	TemplateEvents    = "events"
	TemplateNotices   = "notices"
	TemplateJobs      = "jobs"
	TemplateBoards    = "boards"
	TemplateNews      = "news"
	TemplateTable     = "table"
)

const (
	// EmptyState is the artifact body of a folder without active records
	EmptyState = "<p><em>No files available at this time.</em></p>"

	// DateLayout is the display format of modification dates
	DateLayout = "January 02, 2006"
)

var rowCards = map[string]string{
	TemplateStaff:   "staff-card",
	TemplateEvents:  "event-card",
	TemplateNotices: "notice-card",
	TemplateJobs:    "job-card",
	TemplateBoards:  "board-card",
	TemplateNews:    "news-card",
	TemplateTable:   "table-row",
}

//go:embed templates/*.tmpl
var templateFS embed.FS

// Renderer turns records into HTML fragments
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded card templates
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("cards").Funcs(template.FuncMap{
		"date":   formatDate,
		"size":   formatSize,
		"field":  field,
		"detail": detail,
		"email":  emailDetail,
		"phone":  phoneDetail,
	}).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse card templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Fragment renders one record through the card selected by the folder template
// and the record kind. A payload that cannot be decoded renders an error card.
func (r *Renderer) Fragment(templateType string, rec *model.Record) (string, error) {
	view, err := newItemView(rec)
	if err != nil {
		return r.execute("error-card", view)
	}
	return r.execute(cardFor(templateType, rec.Kind), view)
}

// Wrap joins rendered fragments into the artifact body
func (r *Renderer) Wrap(templateType string, records []*model.Record, fragments []string) (string, error) {
	if len(fragments) == 0 {
		return EmptyState, nil
	}

	body := strings.Join(fragments, "\n")
	if templateType != TemplateTable {
		return "<div class=\"grid\">\n" + body + "\n</div>", nil
	}

	head, err := r.execute("table-head", tableHeader(records))
	if err != nil {
		return "", err
	}
	return "<div class=\"table-responsive\">\n<table class=\"data-table\">\n" + head +
		"\n<tbody>\n" + body + "\n</tbody>\n</table>\n</div>", nil
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

func cardFor(templateType string, kind model.Kind) string {
	if kind == model.KindRow {
		if card, ok := rowCards[templateType]; ok {
			return card
		}
		return "row-card"
	}
	if templateType == TemplateTable {
		return "file-row"
	}

	switch kind {
	case model.KindSpreadsheet:
		return "data-card"
	case model.KindMarkdown:
		return "article-card"
	case model.KindVideo:
		return "video-card"
	default:
		return "document-card"
	}
}

func tableHeader(records []*model.Record) []string {
	if len(records) > 0 && records[0].Kind == model.KindRow {
		if view, err := newItemView(records[0]); err == nil {
			return view.Labels
		}
	}
	return []string{"Name", "Modified", "Size"}
}

// itemView is the union of every payload shape the parsers produce
type itemView struct {
	Kind          model.Kind `json:"-"`
	Name          string     `json:"name"`
	TitleText     string     `json:"title"`
	Size          int64      `json:"size"`
	ModifiedAt    string     `json:"modified_at"`
	WebViewLink   string     `json:"web_view_link"`
	DownloadLink  string     `json:"download_link"`
	ThumbnailLink string     `json:"thumbnail_link"`
	Preview       string     `json:"preview"`
	// ExcerptHTML is markdown rendered by the parser with raw HTML removed
	ExcerptHTML template.HTML     `json:"excerpt_html"`
	RowCount    int               `json:"row_count"`
	Columns     []string          `json:"columns"`
	Labels      []string          `json:"labels"`
	Fields      map[string]string `json:"fields"`
}

func newItemView(rec *model.Record) (*itemView, error) {
	view := &itemView{Kind: rec.Kind, Name: rec.Name}
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, view); err != nil {
			return &itemView{Kind: rec.Kind, Name: rec.Name}, err
		}
	}
	if view.Name == "" {
		view.Name = rec.Name
	}
	return view, nil
}

// Title returns the payload title, falling back to the item name
func (v *itemView) Title() string {
	if v.TitleText != "" {
		return v.TitleText
	}
	if v.Name != "" {
		return v.Name
	}
	return "Untitled"
}

// ViewLink returns the item's view URL or "#"
func (v *itemView) ViewLink() string {
	if v.WebViewLink == "" {
		return "#"
	}
	return v.WebViewLink
}

// Pairs returns the row's cells in column order
func (v *itemView) Pairs() []Pair {
	pairs := make([]Pair, 0, len(v.Columns))
	for i, key := range v.Columns {
		label := key
		if i < len(v.Labels) && v.Labels[i] != "" {
			label = v.Labels[i]
		}
		value := v.Fields[key]
		switch {
		case strings.Contains(key, "email"):
			pairs = append(pairs, emailDetail(label, value))
		case strings.Contains(key, "phone"):
			pairs = append(pairs, phoneDetail(label, value))
		default:
			pairs = append(pairs, detail(label, value))
		}
	}
	return pairs
}

// Pair is a labelled value with an optional link
type Pair struct {
	Label string
	Value string
	Href  template.URL
}

func detail(label, value string) Pair {
	return Pair{Label: label, Value: value}
}

// emailDetail links values that parse as a single bare address
func emailDetail(label, value string) Pair {
	p := Pair{Label: label, Value: value}
	if addr, err := mail.ParseAddress(value); err == nil && addr.Name == "" && addr.Address == strings.TrimSpace(value) {
		//nolint:gosec // The address was validated by net/mail
		p.Href = template.URL("mailto:" + addr.Address)
	}
	return p
}

// phoneDetail links values that contain digits, keeping only digits and a leading plus
func phoneDetail(label, value string) Pair {
	p := Pair{Label: label, Value: value}
	var b strings.Builder
	for i, r := range strings.TrimSpace(value) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if digits := strings.TrimPrefix(b.String(), "+"); digits != "" {
		//nolint:gosec // Only digits and a leading plus remain
		p.Href = template.URL("tel:" + b.String())
	}
	return p
}

// field returns the first non-empty value among keys
func field(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			return v
		}
	}
	return ""
}

func formatDate(s string) string {
	if s == "" {
		return "Unknown"
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC().Format(DateLayout)
}

func formatSize(n int64) string {
	if n <= 0 {
		return ""
	}
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f GB", size)
}
