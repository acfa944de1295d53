// Package snapshot encodes checkpoint file sets for storage as
// zstd-compressed JSON.
package snapshot

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/klauspost/compress/zstd"
)

var (
	initOnce sync.Once
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	initErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	initOnce.Do(func() {
		encoder, initErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if initErr != nil {
			return
		}
		decoder, initErr = zstd.NewReader(nil)
	})
	return encoder, decoder, initErr
}

// EncodeFiles serializes and compresses a checkpoint file set
func EncodeFiles(files []domain.FileSnapshot) ([]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, fmt.Errorf("failed to init zstd: %w", err)
	}
	if files == nil {
		files = []domain.FileSnapshot{}
	}

	raw, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal files: %w", err)
	}

	return enc.EncodeAll(raw, nil), nil
}

// DecodeFiles reverses EncodeFiles
func DecodeFiles(data []byte) ([]domain.FileSnapshot, error) {
	_, dec, err := codecs()
	if err != nil {
		return nil, fmt.Errorf("failed to init zstd: %w", err)
	}

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress files: %w", err)
	}

	var files []domain.FileSnapshot
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("failed to unmarshal files: %w", err)
	}
	return files, nil
}
