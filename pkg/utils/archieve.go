package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"driverecover/internal/models"
)

// ArchiveEntry is one JSON document of a report archive.
type ArchiveEntry struct {
	Name string
	Data interface{}
}

// CreateJSONArchive writes every entry as an indented JSON file into a zip
// archive at outputPath. The archive is written next to outputPath first and
// only renamed into place when complete.
func CreateJSONArchive(entries []ArchiveEntry, outputPath string) (*models.ArchiveInfo, error) {
	tmpFile, err := os.CreateTemp(filepath.Dir(outputPath), ".report-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	tmpPath := tmpFile.Name()

	info, err := writeArchive(tmpFile, entries)
	if closeErr := tmpFile.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close archive: %w", closeErr)
	}
	if err != nil {
		_ = CleanupTempFile(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = CleanupTempFile(tmpPath)
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	info.ArchivePath = outputPath
	return info, nil
}

func writeArchive(outFile *os.File, entries []ArchiveEntry) (*models.ArchiveInfo, error) {
	zipWriter := zip.NewWriter(outFile)

	var originalSize int64
	createdAt := time.Now()
	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		data, err := json.MarshalIndent(entry.Data, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", entry.Name, err)
		}

		name := entry.Name
		if !strings.HasSuffix(name, ".json") {
			name += ".json"
		}

		header := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: createdAt,
		}
		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}

		originalSize += int64(len(data))
		names = append(names, name)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	fileInfo, err := outFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get archive info: %w", err)
	}
	compressedSize := fileInfo.Size()

	compressionRatio := 0.0
	if originalSize > 0 {
		compressionRatio = float64(compressedSize) / float64(originalSize)
	}

	return &models.ArchiveInfo{
		Entries:          names,
		CompressedSize:   compressedSize,
		OriginalSize:     originalSize,
		CompressionRatio: compressionRatio,
		CreatedAt:        createdAt,
	}, nil
}

func GenerateArchiveName(names []string, extension string) string {
	if len(names) == 1 {
		baseName := filepath.Base(names[0])
		if ext := filepath.Ext(baseName); ext != "" {
			baseName = strings.TrimSuffix(baseName, ext)
		}
		return fmt.Sprintf("%s_%s%s", baseName, time.Now().Format("20060102_150405"), extension)
	}

	return fmt.Sprintf("archive_%s%s", time.Now().Format("20060102_150405"), extension)
}

func CleanupTempFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to cleanup temporary file %s: %w", path, err)
	}
	return nil
}
