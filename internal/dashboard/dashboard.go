// Package dashboard serves the widget management single page app.
package dashboard

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFiles embed.FS

// FileSystem exposes the dashboard assets rooted at the static directory.
func FileSystem() http.FileSystem {
	return http.FS(Assets())
}

// Assets returns the raw asset tree, index.html at its root.
func Assets() fs.FS {
	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// fs.Sub only fails on an invalid path literal.
		panic(err)
	}
	return assets
}
