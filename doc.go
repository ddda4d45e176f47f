// Package zipstream implements a mechanism for streaming a directory to an HTTP client as a ZIP archive.
// The archive is produced on the fly by a worker (usually an external compression process) and forwarded
// to the response chunk by chunk, so nothing is buffered in full or persisted.
package zipstream
