package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CreateWorkspace creates the isolated directory tree owned by one job.
func CreateWorkspace(baseDir, jobID string) (string, error) {
	jobDir := filepath.Join(baseDir, jobID)

	dirs := []string{
		jobDir,
		filepath.Join(jobDir, "assets"),
		filepath.Join(jobDir, "segments"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return jobDir, nil
}

// RemoveWorkspace deletes a job's workspace. Safe to call more than once.
func RemoveWorkspace(baseDir, jobID string) error {
	return os.RemoveAll(filepath.Join(baseDir, jobID))
}

// CopyFile copies src to dst, creating dst's directory if needed.
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return out.Close()
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
