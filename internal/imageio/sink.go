package imageio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
)

// DefaultJPEGQuality is used for overlays when no quality is configured
const DefaultJPEGQuality = 90

// FileSink writes each overlay to a new timestamped JPEG in Dir
type FileSink struct {
	Dir     string
	Quality int
	now     func() time.Time
}

// NewFileSink creates the directory if needed
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create overlay dir: %w", err)
	}
	return &FileSink{Dir: dir, Quality: DefaultJPEGQuality, now: time.Now}, nil
}

// WriteOverlay stores a BGR image as overlay_<timestamp>.jpg
func (s *FileSink) WriteOverlay(img gocv.Mat) error {
	name := fmt.Sprintf("overlay_%s.jpg", s.now().Format("20060102_150405.000000"))
	return writeJPEG(filepath.Join(s.Dir, name), img, s.Quality)
}

// PathSink writes the overlay to one fixed path, replacing any previous file
type PathSink string

// WriteOverlay stores a BGR image at the sink's path
func (p PathSink) WriteOverlay(img gocv.Mat) error {
	if dir := filepath.Dir(string(p)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create overlay dir: %w", err)
		}
	}
	return writeJPEG(string(p), img, DefaultJPEGQuality)
}

func writeJPEG(path string, img gocv.Mat, quality int) error {
	if img.Empty() {
		return fmt.Errorf("empty overlay")
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if !gocv.IMWriteWithParams(path, img, []int{int(gocv.IMWriteJpegQuality), quality}) {
		return fmt.Errorf("failed to write overlay %s", path)
	}
	return nil
}
