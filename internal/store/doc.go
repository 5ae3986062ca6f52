// Package store persists files received from a peer.
//
// DownloadStore implements domain.FileStore. Incoming bytes are written to a
// hidden temp file in the download directory and renamed into place on
// Commit, so a partially received file is never visible under its final
// name. An existing file is never overwritten; a numeric suffix is added
// instead ("report.pdf", "report-1.pdf", ...). All methods are
// concurrency-safe via internal locking.
package store
