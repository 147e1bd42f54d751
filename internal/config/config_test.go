package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/colorseason/internal/dominant"
	"github.com/dudu/colorseason/internal/pipeline"
	"github.com/dudu/colorseason/internal/region"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "colorseason.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "scrfd", cfg.Models.Backend)
	assert.Equal(t, 640, cfg.Models.DetectionSize)
	assert.InDelta(t, 0.5, cfg.Models.ConfThreshold, 1e-6)
	assert.Equal(t, "ImgBackup/Uploads", cfg.Artifacts.UploadDir)
	assert.Equal(t, "ImgBackup/Colors", cfg.Artifacts.OverlayDir)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)

	pc := cfg.PipelineConfig()
	assert.Equal(t, region.DefaultConfig(), pc.Regions)
	assert.Equal(t, dominant.DefaultOptions(), pc.Clustering)
	assert.False(t, pc.Concurrent)
}

func TestLoadSearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "colorseason.yaml"),
		[]byte("server:\n  addr: \":9000\"\n"), 0o644))
	chdir(t, dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
models:
  backend: yunet
  detector_path: models/face_detection_yunet.onnx
regions:
  skin_lower: [0, 30, 80]
  lip_padding: 8
clustering:
  attempts: 25
pipeline:
  concurrent: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	mc := cfg.ModelConfig()
	assert.Equal(t, pipeline.BackendYuNet, mc.Backend)
	assert.Equal(t, "models/face_detection_yunet.onnx", mc.DetectorPath)
	assert.Equal(t, "models/landmark68.onnx", mc.LandmarkPath)

	pc := cfg.PipelineConfig()
	assert.Equal(t, [3]float64{0, 30, 80}, pc.Regions.Skin.Lower)
	assert.Equal(t, [3]float64{20, 255, 255}, pc.Regions.Skin.Upper)
	assert.Equal(t, 8, pc.Regions.LipPadding)
	assert.Equal(t, 25, pc.Clustering.Attempts)
	assert.True(t, pc.Concurrent)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("COLORSEASON_SERVER_ADDR", "127.0.0.1:7000")
	t.Setenv("COLORSEASON_CLUSTERING_ATTEMPTS", "12")
	t.Setenv("COLORSEASON_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
	assert.Equal(t, 12, cfg.Clustering.Attempts)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "too few attempts", body: "clustering:\n  attempts: 5\n"},
		{name: "unknown backend", body: "models:\n  backend: mtcnn\n"},
		{name: "inverted skin band", body: "regions:\n  skin_lower: [30, 20, 70]\n  skin_upper: [20, 255, 255]\n"},
		{name: "negative padding", body: "regions:\n  lip_padding: -1\n"},
		{name: "short hsv bound", body: "regions:\n  hair_lower: [0, 20]\n"},
		{name: "hue above 180", body: "regions:\n  hair_upper: [200, 255, 255]\n"},
		{name: "zero upload limit", body: "server:\n  max_upload_mb: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
