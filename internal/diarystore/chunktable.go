package diarystore

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

const chunkTableVersion = "1"

type chunkTableEnvelope struct {
	Version string
	Chunks  map[int64]Chunk
}

func saveChunkTable(path string, chunks map[int64]Chunk) error {
	cp := make(map[int64]Chunk, len(chunks))
	for k, v := range chunks {
		cp[k] = v
	}
	return writeAtomicGob(path, chunkTableEnvelope{Version: chunkTableVersion, Chunks: cp})
}

func loadChunkTable(path string) (map[int64]Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var env chunkTableEnvelope
	if err := gob.NewDecoder(f).Decode(&env); err != nil {
		return nil, fmt.Errorf("diarystore: decoding chunk table: %w", err)
	}
	return env.Chunks, nil
}

// writeAtomicGob gob-encodes v to a temp file beside path, fsyncs, and
// renames it into place. Mirrors vecindex's writeAtomic so both per-diary
// shard kinds share the same crash-safety guarantee.
func writeAtomicGob(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("diarystore: creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("diarystore: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		return fmt.Errorf("diarystore: encoding: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("diarystore: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("diarystore: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("diarystore: renaming into place: %w", err)
	}
	cleanup = false
	return nil
}
