package docker

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"time"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// tarFiles packs files into a tar stream for CopyToContainer.
func tarFiles(files []domain.FileEntry) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()
	for _, f := range files {
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{
			Name:    f.Name,
			Mode:    mode,
			Size:    int64(len(f.Content)),
			ModTime: now,
			Format:  tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", f.Name, err)
		}
		if _, err := tw.Write(f.Content); err != nil {
			return nil, fmt.Errorf("failed to write %s to tar: %w", f.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar stream: %w", err)
	}
	return &buf, nil
}
