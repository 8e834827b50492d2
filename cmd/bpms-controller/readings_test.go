package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.csv")
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, fmt.Sprintf("row %d", i))
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))

	require.NoError(t, keepLastLines(path, 3))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "row 7\nrow 8\nrow 9\n", string(data))
}

func TestKeepLastLinesUnderLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.csv")
	require.NoError(t, os.WriteFile(path, []byte("row 0\nrow 1\n"), 0644))

	require.NoError(t, keepLastLines(path, 3))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "row 0\nrow 1\n", string(data))
}

func TestKeepLastLinesMissingFile(t *testing.T) {
	assert.NoError(t, keepLastLines(filepath.Join(t.TempDir(), "missing.csv"), 3))
}
