// Package site serves the embedded landing page.
package site

import (
	"context"
	"net/http"
)

// Register attaches the landing page and its assets to mux. Only the exact
// root path serves the index; other unknown paths stay 404.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	files := http.FileServer(FS())
	mux.Handle("GET /{$}", files)
	mux.Handle("GET /style.css", files)
}
