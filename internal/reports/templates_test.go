package reports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExamDisplayName(t *testing.T) {
	assert.Equal(t, "X-ray", ExamDisplayName("xray"))
	assert.Equal(t, "X-ray", ExamDisplayName("radiograph"))
	assert.Equal(t, "CT", ExamDisplayName("ct"))
	assert.Equal(t, "MRI", ExamDisplayName("MRI"))
	assert.Equal(t, "fluoroscopy", ExamDisplayName("fluoroscopy"))
}

func TestCapitalizeForDisplay(t *testing.T) {
	assert.Equal(t, "Chest", CapitalizeForDisplay("chest"))
	assert.Equal(t, "Urgent", CapitalizeForDisplay("urgent"))
	assert.Equal(t, "", CapitalizeForDisplay(""))
}

func TestGenerate(t *testing.T) {
	report := Generate("xray", "tuberculosis")
	assert.Equal(t, "X-ray - Chest", report.Title)
	assert.Contains(t, report.Impression, "tuberculosis")
	assert.Contains(t, report.Recommendations, "isolation precautions")

	for _, diagnosis := range []string{"adenocarcinoma", "squamous_cell_carcinoma", "large_cell_carcinoma", "lung_cancer", "malignant"} {
		report = Generate("ct", diagnosis)
		assert.Equal(t, "CT - Chest", report.Title, diagnosis)
		assert.Contains(t, report.Impression, "lung cancer", diagnosis)
		assert.Contains(t, report.Technique, "Contrast-enhanced CT", diagnosis)
	}

	report = Generate("xray", "inconclusive")
	assert.Contains(t, report.Impression, "additional evaluation")

	report = Generate("xray", "other_abnormality")
	assert.Contains(t, report.Impression, "right lower lung")

	// Normal is the residual category.
	for _, diagnosis := range []string{"normal", "Normal", "something_else"} {
		report = Generate("xray", diagnosis)
		assert.Contains(t, report.Impression, "Normal chest imaging study", diagnosis)
	}
}
