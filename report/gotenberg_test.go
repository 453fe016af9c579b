package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTMLUploadsIndexDocument(t *testing.T) {
	var filename string
	var received string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		files := r.MultipartForm.File["files"]
		require.Len(t, files, 1)
		filename = files[0].Filename

		file, err := files[0].Open()
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		received = string(data)

		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	pdf, err := NewClient(srv.URL).RenderHTML(context.Background(), "<html><body>hi</body></html>")
	require.NoError(t, err)

	assert.Equal(t, "index.html", filename)
	assert.Equal(t, "<html><body>hi</body></html>", received)
	assert.Equal(t, "%PDF-1.4", string(pdf))
}

func TestRenderHTMLReportsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "malformed payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).RenderHTML(context.Background(), "<html></html>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}
