package zipstream

import (
	"fmt"
	"net/http"
)

const (
	// ContentType is the media type of a streamed archive.
	ContentType = "application/zip"

	// DefaultFilename is the filename suggested to the client.
	DefaultFilename = "archive.zip"
)

// setArchiveHeaders prepares the headers of an archive download.
// No Content-Length is set: the archive size is unknown until it has been produced, so the body is chunked.
func setArchiveHeaders(h http.Header, filename string) {
	h.Set("Content-Type", ContentType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Del("Content-Length")
}
