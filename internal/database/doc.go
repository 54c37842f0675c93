// Package database provides SQLite-based storage for csvanon.
//
// HistoryDB keeps an audit log of finished runs: which file was uploaded,
// how far the flow got, and which artifacts were produced or why the run
// failed. Upload content and previews are never stored.
//
// modernc.org/sqlite is used so the binary stays CGO-free. The history is
// optional; the upload flow itself keeps no state between requests.
package database
