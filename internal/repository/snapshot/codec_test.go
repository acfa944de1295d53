package snapshot

import (
	"strings"
	"testing"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFiles(t *testing.T) {
	files := []domain.FileSnapshot{
		{Path: "t1.txt", Name: "t1.txt", Content: "one", FileType: "txt", Size: 3},
		{Path: "src", Name: "src", IsDirectory: true},
		{Path: "src/t2.js", Name: "t2.js", Content: strings.Repeat("console.log(1)\n", 200), FileType: "js", Size: 3000},
	}

	data, err := EncodeFiles(files)
	require.NoError(t, err)
	assert.Less(t, len(data), 3000, "repetitive content should compress")

	got, err := DecodeFiles(data)
	require.NoError(t, err)
	assert.Equal(t, files, got)
}

func TestEncodeFiles_Empty(t *testing.T) {
	data, err := EncodeFiles(nil)
	require.NoError(t, err)

	got, err := DecodeFiles(data)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestDecodeFiles_Garbage(t *testing.T) {
	_, err := DecodeFiles([]byte("not zstd"))
	assert.Error(t, err)
}
