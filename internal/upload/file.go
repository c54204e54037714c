package upload

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
)

// AcceptedExtensions and AcceptedMIMETypes list the spreadsheet formats the
// analysis agent understands. A file passes if either check matches.
var (
	AcceptedExtensions = []string{"xlsx", "xls", "csv"}
	AcceptedMIMETypes  = []string{
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel",
		"text/csv",
	}
)

// File is one file selected for upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Extension returns the lowercased extension without the dot.
func (f File) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
}

// MediaType returns the content type without parameters, lowercased.
func (f File) MediaType() string {
	ct := strings.TrimSpace(f.ContentType)
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return mt
}

// Validate reports a ValidationError when f is neither a known extension nor
// a known MIME type.
func Validate(f File) error {
	if strings.TrimSpace(f.Name) == "" && f.ContentType == "" {
		return apperror.Validation("No file selected.")
	}
	if contains(AcceptedExtensions, f.Extension()) || contains(AcceptedMIMETypes, f.MediaType()) {
		return nil
	}
	return apperror.Validation(fmt.Sprintf("Unsupported file type for %q. Please upload an Excel (.xlsx, .xls) or CSV file.", f.Name))
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// MultipartContentType returns the content type to send upstream, inferring
// one from the extension when the caller supplied none.
func (f File) MultipartContentType() string {
	if mt := f.MediaType(); mt != "" {
		return mt
	}
	switch f.Extension() {
	case "xlsx":
		return AcceptedMIMETypes[0]
	case "xls":
		return AcceptedMIMETypes[1]
	case "csv":
		return AcceptedMIMETypes[2]
	}
	return "application/octet-stream"
}
