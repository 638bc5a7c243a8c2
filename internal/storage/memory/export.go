package memory

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	v1 "github.com/OCAP2/scene-engine/internal/storage/memory/export/v1"
	"github.com/OCAP2/scene-engine/internal/util"
)

const (
	extJSON   = ".scene.json"
	extGzJSON = ".scene.json.gz"
)

// exportScene writes the record to a JSON or gzipped JSON file and returns its path.
func (b *Backend) exportScene(r *record) (string, error) {
	export := v1.Build(r.snap, r.savedAt)

	stem := util.SanitizeFilename(r.snap.Scene.Name)
	var filename string
	if b.cfg.CompressOutput {
		filename = stem + extGzJSON
	} else {
		filename = stem + extJSON
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return "", err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return "", err
		}
	}

	// a previous save under the other compression setting is stale now
	if r.path != "" && r.path != outputPath {
		_ = removeFile(r.path)
	}
	return outputPath, nil
}

func writeJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}

// readFile decodes a scene file, gzipped or plain depending on its extension.
func readFile(path string) (*record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	var export v1.Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	snap, err := export.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &record{snap: snap, savedAt: export.SavedAt, path: path}, nil
}

// readDir loads every scene file in the output directory. When two files hold the
// same scene name the most recently saved one wins.
func (b *Backend) readDir(ctx context.Context) (map[string]*record, error) {
	entries, err := os.ReadDir(b.cfg.OutputDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	out := make(map[string]*record)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, extJSON) || strings.HasSuffix(name, extGzJSON)) {
			continue
		}
		r, err := readFile(filepath.Join(b.cfg.OutputDir, name))
		if err != nil {
			return nil, err
		}
		if prev, ok := out[r.snap.Scene.Name]; ok && prev.savedAt.After(r.savedAt) {
			continue
		}
		out[r.snap.Scene.Name] = r
	}
	return out, nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
