package model

import (
	"path/filepath"
	"strings"
)

// TempFilePrefix is prepended to the uploaded file name when it is written
// to local storage.
const TempFilePrefix = "temp_"

// CSVExtension is the only file extension accepted by the upload flow.
const CSVExtension = ".csv"

// UploadedFile is the raw upload received from the UI layer.
// It only lives for the duration of one request.
type UploadedFile struct {
	// Name is the original file name as reported by the client.
	Name string `json:"name"`

	// Content is the uploaded bytes. It is expected to be CSV text but
	// nothing is assumed about it until the flow has validated it.
	Content []byte `json:"-"`
}

// NewUploadedFile creates an UploadedFile.
func NewUploadedFile(name string, content []byte) UploadedFile {
	return UploadedFile{Name: name, Content: content}
}

// Size returns the number of uploaded bytes.
func (u UploadedFile) Size() int64 {
	return int64(len(u.Content))
}

// TempName returns the file name used on local storage, "temp_<name>".
func (u UploadedFile) TempName() string {
	return TempFilePrefix + u.Name
}

// Stem returns the original file name without directory and extension.
// "data.csv" becomes "data".
func (u UploadedFile) Stem() string {
	base := filepath.Base(u.Name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TempDatasetFile is the on-disk copy of an UploadedFile.
// Path is always inside Dir, and Dir is owned by exactly one run.
type TempDatasetFile struct {
	// Path is the full path of the written dataset.
	Path string `json:"path"`

	// Dir is the run-scoped directory that contains Path.
	Dir string `json:"dir"`
}
