package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTextPlainFiles(t *testing.T) {
	text, err := ExtractText(File{Name: "notes.txt", Data: []byte("hello world")})
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	text, err = ExtractText(File{Name: "README.md", Data: []byte("# Title\n\nbody")})
	require.NoError(t, err)
	assert.Contains(t, text, "body")
}

func TestExtractTextRejectsUnsupportedType(t *testing.T) {
	_, err := ExtractText(File{Name: "report.docx", Data: []byte("data")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")

	assert.False(t, SupportedFile("report.docx"))
	assert.True(t, SupportedFile("paper.PDF"))
	assert.True(t, SupportedFile("notes.txt"))
}

func TestExtractTextRejectsEmptyAndBinary(t *testing.T) {
	_, err := ExtractText(File{Name: "empty.txt", Data: nil})
	assert.Error(t, err)

	_, err = ExtractText(File{Name: "binary.txt", Data: []byte{0xff, 0xfe, 0x00, 0x80}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid UTF-8")
}

func TestExtractTextRejectsMalformedPDF(t *testing.T) {
	_, err := ExtractText(File{Name: "broken.pdf", Data: []byte("not really a pdf")})
	assert.Error(t, err)
}
