package tests

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
)

// GetProjectRootPath walks up from the working directory to the directory holding go.mod
func GetProjectRootPath() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	startingPath := ""
	iterations := 0
	for {
		if iterations > 10 {
			panic("Could not find project root path")
		}
		iterations++
		p, err := filepath.Abs(fmt.Sprintf("%s/%s", wd, startingPath))
		if err != nil {
			panic(err)
		}

		if _, err := os.Stat(filepath.Join(p, "go.mod")); err == nil {
			return p
		}
		startingPath = startingPath + "/.."
	}
}

// TreeVector is the expected shape of one tree over the pinned records
type TreeVector struct {
	Root         string   `json:"root"`
	Level1       []string `json:"level1"`
	ReversedRoot string   `json:"reversedRoot,omitempty"`
}

// PinnedVectors are published digests that every implementation of the
// commitment scheme must reproduce bit for bit
type PinnedVectors struct {
	Schema      types.Schema               `json:"schema"`
	Records     []*types.EntitlementRecord `json:"records"`
	LeafDigests []string                   `json:"leafDigests"`
	Positional  TreeVector                 `json:"positional"`
	Sorted      TreeVector                 `json:"sorted"`
}

func ReadPinnedVectors(projectRoot string) (*PinnedVectors, error) {
	filePath := fmt.Sprintf("%s/internal/testData/pinned-vectors.json", projectRoot)

	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var pv *PinnedVectors
	if err := json.Unmarshal(file, &pv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file: %w", err)
	}
	return pv, nil
}
