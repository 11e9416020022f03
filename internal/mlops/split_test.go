package mlops

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAssignSplitDeterministic(t *testing.T) {
	id := uuid.New()
	first := AssignSplit(id)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, AssignSplit(id))
	}
}

func TestAssignSplitDistribution(t *testing.T) {
	const n = 10000
	train := 0
	for i := 0; i < n; i++ {
		if AssignSplit(uuid.New()) == SplitTrain {
			train++
		}
	}

	fraction := float64(train) / n
	assert.InDelta(t, 0.8, fraction, 0.03)
}
