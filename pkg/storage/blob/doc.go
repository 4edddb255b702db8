// Package blob stores the captured state of rollback points. Captured state is
// opaque bytes to the engine; the filesystem and S3 stores here only put, get
// and delete by key.
package blob
