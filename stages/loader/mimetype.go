package loader

import (
	"net/http"
	"path/filepath"
	"strings"
)

const (
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"
	MimeHTML     = "text/html"
)

var extensionTypes = map[string]string{
	".pdf":      MimePDF,
	".docx":     MimeDOCX,
	".txt":      MimeText,
	".md":       MimeMarkdown,
	".markdown": MimeMarkdown,
	".html":     MimeHTML,
	".htm":      MimeHTML,
}

// SupportedExtensions lists the file extensions the extractor accepts.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionTypes))
	for ext := range extensionTypes {
		exts = append(exts, ext)
	}
	return exts
}

// DetectType returns the mime type for a document. The extension of source
// wins when it is known; otherwise the content is sniffed. An empty result
// means the type is not supported.
func DetectType(data []byte, source string) string {
	if ext := strings.ToLower(filepath.Ext(source)); ext != "" {
		return extensionTypes[ext]
	}

	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	switch sniffed {
	case MimePDF, MimeText, MimeHTML:
		return sniffed
	case "application/zip":
		// DOCX is a zip container; confirm by looking for the main part
		if isDOCX(data) {
			return MimeDOCX
		}
	}
	return ""
}
