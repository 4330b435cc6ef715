package importer

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/chravel/chravel-import/internal/model"
)

// File is an uploaded document.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

var formatByExt = map[string]model.SourceFormat{
	".ics":  model.FormatICS,
	".ical": model.FormatICS,
	".ifb":  model.FormatICS,
	".csv":  model.FormatCSV,
	".xlsx": model.FormatExcel,
	".xlsm": model.FormatExcel,
	".xls":  model.FormatExcel,
	".pdf":  model.FormatPDF,
	".png":  model.FormatImage,
	".jpg":  model.FormatImage,
	".jpeg": model.FormatImage,
	".gif":  model.FormatImage,
	".webp": model.FormatImage,
	".heic": model.FormatImage,
	".txt":  model.FormatText,
	".md":   model.FormatText,
}

var formatByMIME = map[string]model.SourceFormat{
	"text/calendar":            model.FormatICS,
	"text/csv":                 model.FormatCSV,
	"application/csv":          model.FormatCSV,
	"application/vnd.ms-excel": model.FormatExcel,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": model.FormatExcel,
	"application/pdf": model.FormatPDF,
	"text/plain":      model.FormatText,
	"text/markdown":   model.FormatText,
}

// DetectFormat picks a format from the file extension, falling back to the
// declared MIME type. ok is false when neither is recognised.
func DetectFormat(name, contentType string) (model.SourceFormat, bool) {
	if f, ok := formatByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return f, true
	}

	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	if f, ok := formatByMIME[mt]; ok {
		return f, true
	}
	if strings.HasPrefix(mt, "image/") {
		return model.FormatImage, true
	}
	return "", false
}

// mimeTypeOf returns the upload content type for f.
func mimeTypeOf(f File, format model.SourceFormat) string {
	if mt, _, err := mime.ParseMediaType(f.ContentType); err == nil && mt != "application/octet-stream" {
		return mt
	}
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
	}
	switch format {
	case model.FormatPDF:
		return "application/pdf"
	case model.FormatImage:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
