package mlops

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// Split names a partition of a training dataset.
type Split string

const (
	SplitTrain Split = "train"
	SplitTest  Split = "test"
)

const trainFraction = 0.8

// AssignSplit deterministically assigns a scan to a dataset split by hashing
// its id. The same scan always lands in the same split across retries, so a
// re-sync never leaks images between partitions.
func AssignSplit(scanID uuid.UUID) Split {
	h := fnv.New64a()
	h.Write([]byte(scanID.String()))

	ratio := float64(h.Sum64()%10000) / 10000
	if ratio < trainFraction {
		return SplitTrain
	}
	return SplitTest
}
