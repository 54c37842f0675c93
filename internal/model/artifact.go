package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file name suffixes written by the external anonymizer.
const (
	// SyntheticDataSuffix is appended to the dataset stem for the synthetic CSV.
	SyntheticDataSuffix = "-synthetic_data.csv"

	// ReportSuffix is appended to the dataset stem for the HTML report.
	ReportSuffix = "-anonymization_report.html"
)

// ArtifactPair holds the two output files expected from one anonymization.
// Their content is owned by the external library; only existence is checked.
type ArtifactPair struct {
	// SyntheticData is the path of "<stem>-synthetic_data.csv".
	SyntheticData string `json:"synthetic_data"`

	// Report is the path of "<stem>-anonymization_report.html".
	Report string `json:"report"`
}

// NewArtifactPair derives the expected artifact paths for a dataset stem.
func NewArtifactPair(artifactsDir, stem string) ArtifactPair {
	return ArtifactPair{
		SyntheticData: filepath.Join(artifactsDir, stem+SyntheticDataSuffix),
		Report:        filepath.Join(artifactsDir, stem+ReportSuffix),
	}
}

// Paths returns both artifact paths, synthetic data first.
func (a ArtifactPair) Paths() []string {
	return []string{a.SyntheticData, a.Report}
}

// SyntheticDataName returns the base name of the synthetic data file.
func (a ArtifactPair) SyntheticDataName() string {
	return filepath.Base(a.SyntheticData)
}

// ReportName returns the base name of the report file.
func (a ArtifactPair) ReportName() string {
	return filepath.Base(a.Report)
}

// IsZero reports whether no artifact paths have been set.
func (a ArtifactPair) IsZero() bool {
	return a.SyntheticData == "" && a.Report == ""
}

// Missing returns the artifact paths that do not exist as regular files.
// An error is returned only when a stat fails for a reason other than
// the file not existing.
func (a ArtifactPair) Missing() ([]string, error) {
	var missing []string
	for _, p := range a.Paths() {
		info, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			missing = append(missing, p)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat artifact %s: %w", p, err)
		}
		if info.IsDir() {
			missing = append(missing, p)
		}
	}
	return missing, nil
}
