package s3blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaleKeys_KeepsNewestRuns(t *testing.T) {
	keys := []string{
		"snapshots/run-100/positions.jsonl",
		"snapshots/run-100/wallet_pnl.jsonl",
		"snapshots/run-200/positions.jsonl",
		"snapshots/run-300/positions.jsonl",
		"snapshots/run-300/gap_report.json",
	}

	stale := staleKeys(keys, 2)

	assert.Equal(t, []string{
		"snapshots/run-100/positions.jsonl",
		"snapshots/run-100/wallet_pnl.jsonl",
	}, stale)
}

func TestStaleKeys_NothingToPrune(t *testing.T) {
	keys := []string{
		"snapshots/run-100/positions.jsonl",
		"snapshots/run-200/positions.jsonl",
	}

	assert.Empty(t, staleKeys(keys, 2))
	assert.Empty(t, staleKeys(nil, 2))
}

func TestStaleKeys_IgnoresForeignKeys(t *testing.T) {
	keys := []string{
		"snapshots/README.md",
		"snapshots/run-abc/positions.jsonl",
		"snapshots/run-100/positions.jsonl",
		"snapshots/run-200/positions.jsonl",
	}

	stale := staleKeys(keys, 1)

	assert.Equal(t, []string{"snapshots/run-100/positions.jsonl"}, stale)
}

func TestRunVersionOf(t *testing.T) {
	v, ok := runVersionOf("snapshots/run-1712000000/positions.jsonl")
	assert.True(t, ok)
	assert.Equal(t, int64(1712000000), v)

	_, ok = runVersionOf("snapshots/latest/positions.jsonl")
	assert.False(t, ok)
}
