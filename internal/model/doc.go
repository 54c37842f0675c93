// Package model defines the data structures that flow through csvanon.
//
// A request starts as an UploadedFile, is persisted as a TempDatasetFile,
// and ends as a Run that records the state reached, the preview text, the
// ArtifactPair produced by the external anonymizer, and the typed error
// that terminated the run if it failed.
//
// All types in this package are plain data. They carry JSON tags so that
// the same structures are used by the web API, the report writers, and the
// run history database.
package model
