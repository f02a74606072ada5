package rag

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// File is a raw uploaded document before extraction.
type File struct {
	Name string
	Data []byte
}

var supportedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// SupportedFile reports whether the file extension is accepted for indexing.
func SupportedFile(name string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(name))]
}

// ExtractText converts an uploaded file into plain text. Unsupported
// extensions and undecodable content are rejected with permanent errors.
func ExtractText(file File) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Name))
	if !supportedExtensions[ext] {
		return "", fmt.Errorf("unsupported file type %q (supported: .pdf, .txt, .md)", ext)
	}
	if len(file.Data) == 0 {
		return "", fmt.Errorf("file %s is empty", file.Name)
	}

	switch ext {
	case ".pdf":
		return extractPDF(file)
	default:
		if !utf8.Valid(file.Data) {
			return "", fmt.Errorf("file %s is not valid UTF-8 text", file.Name)
		}
		return string(file.Data), nil
	}
}

func extractPDF(file File) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse PDF %s: %v", file.Name, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(file.Data), int64(len(file.Data)))
	if err != nil {
		return "", fmt.Errorf("parse PDF %s: %w", file.Name, err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A broken page should not discard the rest of the document.
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}

	result := strings.TrimSpace(sb.String())
	if result == "" {
		return "", fmt.Errorf("PDF %s contains no extractable text", file.Name)
	}
	return result, nil
}
