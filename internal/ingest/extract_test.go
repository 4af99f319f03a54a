package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupported(t *testing.T) {
	assert.True(t, Supported("guide.txt"))
	assert.True(t, Supported("GUIDE.PDF"))
	assert.False(t, Supported("guide.docx"))
	assert.False(t, Supported("README"))
}

func TestExtractText_PlainText(t *testing.T) {
	text, err := ExtractText("guide.txt", []byte("Roof age limit is 15 years."))
	require.NoError(t, err)
	assert.Equal(t, "Roof age limit is 15 years.", text)
}

func TestExtractText_DropsInvalidUTF8(t *testing.T) {
	text, err := ExtractText("guide.txt", []byte("Roof\xffage"))
	require.NoError(t, err)
	assert.Equal(t, "Roofage", text)
}

func TestExtractText_Unsupported(t *testing.T) {
	_, err := ExtractText("guide.docx", []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractText_EmptyPDF(t *testing.T) {
	text, err := ExtractText("guide.pdf", nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractText_MalformedPDF(t *testing.T) {
	_, err := ExtractText("guide.pdf", []byte("not a pdf"))
	assert.Error(t, err)
}
