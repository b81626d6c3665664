// Package uistatic embeds the question form served at the API root. The
// page is plain HTML/CSS/JS with no build step, so the binary carries it
// directly.
package uistatic

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
)

//go:embed all:app
var appFS embed.FS

// Handler serves the embedded page. Paths that do not name an embedded file
// get index.html, so client-side routes survive a reload.
func Handler() http.Handler {
	pages, err := fs.Sub(appFS, "app")
	if err != nil {
		return http.NotFoundHandler()
	}
	assets := http.FileServerFS(pages)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Clean always yields a rooted path here, so [1:] strips the
		// leading slash and maps "/" to "".
		name := path.Clean("/" + r.URL.Path)[1:]
		if name != "" {
			if info, err := fs.Stat(pages, name); err == nil && !info.IsDir() {
				assets.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFileFS(w, r, pages, "index.html")
	})
}
