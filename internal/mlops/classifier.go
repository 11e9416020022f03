package mlops

import (
	"log/slog"
	"strings"
)

// DatasetType is the coarse training-corpus category a scan feeds into.
type DatasetType string

const (
	DatasetTB         DatasetType = "tb"
	DatasetLungCancer DatasetType = "lung_cancer"
)

// Diagnosis and dataset-type strings arrive in mixed case from different
// upstream code paths, so every lookup below normalizes first.

const genericLungCancer = "lung_cancer"

// fallbackFolder receives generic lung-cancer diagnoses with no usable
// subtype information.
const fallbackFolder = "malignant"

var tbFolders = map[string]string{
	"normal":       "Normal",
	"tuberculosis": "Tuberculosis",
}

var lungCancerSubtypes = map[string]struct{}{
	"adenocarcinoma":          {},
	"squamous_cell_carcinoma": {},
	"large_cell_carcinoma":    {},
	"benign":                  {},
	"malignant":               {},
	"normal":                  {},
}

var excludedDiagnoses = map[string]struct{}{
	"inconclusive":      {},
	"other_abnormality": {},
	"unknown":           {},
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DatasetTypeFor derives the dataset type from the exam modality and body
// region. Scans outside the two supported combinations are not part of any
// training corpus and are skipped by the sync pipeline.
func DatasetTypeFor(examType, bodyRegion string) (DatasetType, bool) {
	if normalize(bodyRegion) != "chest" {
		return "", false
	}

	switch normalize(examType) {
	case "xray", "x-ray", "radiograph":
		return DatasetTB, true
	case "ct":
		return DatasetLungCancer, true
	}
	return "", false
}

// IsTrainable reports whether a diagnosis maps to a class folder for the
// given dataset type.
func IsTrainable(diagnosis string, dataset DatasetType) bool {
	d := normalize(diagnosis)
	if _, excluded := excludedDiagnoses[d]; excluded {
		return false
	}

	switch dataset {
	case DatasetTB:
		_, ok := tbFolders[d]
		return ok
	case DatasetLungCancer:
		if _, ok := lungCancerSubtypes[d]; ok {
			return true
		}
		return d == genericLungCancer
	}
	return false
}

// Classify maps a radiologist diagnosis to the canonical class-folder name.
//
// The AI-predicted subtype is consulted only when the radiologist's label is
// the generic "lung_cancer" umbrella term: the radiologist supplies the
// ground truth that something is cancer, and the AI subtype refines which
// cancer for folder organization. It never overrides any other label.
func Classify(diagnosis string, dataset DatasetType, aiSubtype string) (string, bool) {
	d := normalize(diagnosis)
	if _, excluded := excludedDiagnoses[d]; excluded {
		return "", false
	}

	switch dataset {
	case DatasetTB:
		folder, ok := tbFolders[d]
		return folder, ok

	case DatasetLungCancer:
		if _, ok := lungCancerSubtypes[d]; ok {
			return d, true
		}
		if d != genericLungCancer {
			return "", false
		}

		sub := normalize(aiSubtype)
		if _, ok := lungCancerSubtypes[sub]; ok {
			return sub, true
		}

		slog.Warn("no usable subtype for generic lung cancer diagnosis, using fallback folder",
			"diagnosis", diagnosis, "ai_subtype", aiSubtype, "folder", fallbackFolder)
		return fallbackFolder, true
	}

	return "", false
}
