package sources

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/civicportal/portal-sync/internal/model"
)

// Mime types with special handling
const (
	MimeGoogleDoc    = "application/vnd.google-apps.document"
	MimeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeGoogleFolder = "application/vnd.google-apps.folder"
	MimeDocx         = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeCSV          = "text/csv"
	MimeMarkdown     = "text/markdown"
	MimePlain        = "text/plain"
	MimePDF          = "application/pdf"
	MimeRow          = "application/x-sheet-row+json"
)

// KindFor maps a mime type, falling back to the file extension of name, to an item kind
func KindFor(mimeType, name string) model.Kind {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))

	switch {
	case mimeType == MimeGoogleSheet || mimeType == MimeCSV:
		return model.KindSpreadsheet
	case mimeType == MimeMarkdown || mimeType == "text/x-markdown":
		return model.KindMarkdown
	case mimeType == MimeGoogleDoc || mimeType == MimeDocx:
		return model.KindDocument
	case mimeType == MimePDF:
		return model.KindPDF
	case mimeType == MimePlain:
		// Some providers report markdown and CSV uploads as plain text
		if k := kindForExtension(name); k != model.KindFile {
			return k
		}
		return model.KindText
	case mimeType == MimeRow:
		return model.KindRow
	case strings.HasPrefix(mimeType, "video/"):
		return model.KindVideo
	}
	return kindForExtension(name)
}

func kindForExtension(name string) model.Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return model.KindSpreadsheet
	case ".md", ".markdown":
		return model.KindMarkdown
	case ".txt":
		return model.KindText
	case ".docx":
		return model.KindDocument
	case ".pdf":
		return model.KindPDF
	case ".mp4", ".mov", ".webm", ".m4v":
		return model.KindVideo
	}
	return model.KindFile
}

// mimeForName guesses a mime type from a file extension
func mimeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return MimeMarkdown
	case ".csv":
		return MimeCSV
	case ".docx":
		return MimeDocx
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		t, _, _ = strings.Cut(t, ";")
		return t
	}
	return "application/octet-stream"
}

// hasTextContent reports whether an item's bytes are downloaded for parsing.
// Word documents are binary and are tracked by metadata like PDFs.
func hasTextContent(ref model.ItemRef) bool {
	return ref.Kind.NeedsContent() && ref.MimeType != MimeDocx
}
