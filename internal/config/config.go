// Package config loads colorseason settings from an optional YAML file and
// COLORSEASON_* environment variables on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/dudu/colorseason/internal/dominant"
	"github.com/dudu/colorseason/internal/inference"
	"github.com/dudu/colorseason/internal/pipeline"
	"github.com/dudu/colorseason/internal/region"
)

// EnvPrefix prefixes every environment override, e.g. COLORSEASON_SERVER_ADDR
const EnvPrefix = "COLORSEASON"

// Config is the full application configuration
type Config struct {
	Models     ModelsConfig     `mapstructure:"models"`
	Regions    RegionsConfig    `mapstructure:"regions"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Artifacts  ArtifactsConfig  `mapstructure:"artifacts"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
}

type ModelsConfig struct {
	Backend           string  `mapstructure:"backend"`
	LibraryPath       string  `mapstructure:"library_path"`
	DetectorPath      string  `mapstructure:"detector_path"`
	LandmarkPath      string  `mapstructure:"landmark_path"`
	DetectionSize     int     `mapstructure:"detection_size"`
	ConfThreshold     float32 `mapstructure:"conf_threshold"`
	NMSThreshold      float32 `mapstructure:"nms_threshold"`
	TopK              int     `mapstructure:"top_k"`
	LandmarkInputSize int     `mapstructure:"landmark_input_size"`
}

// RegionsConfig holds OpenCV 8-bit HSV bounds as [H, S, V]
type RegionsConfig struct {
	HairLower  []float64 `mapstructure:"hair_lower"`
	HairUpper  []float64 `mapstructure:"hair_upper"`
	SkinLower  []float64 `mapstructure:"skin_lower"`
	SkinUpper  []float64 `mapstructure:"skin_upper"`
	LipPadding int       `mapstructure:"lip_padding"`
}

type ClusteringConfig struct {
	Attempts      int     `mapstructure:"attempts"`
	MaxIterations int     `mapstructure:"max_iterations"`
	Epsilon       float64 `mapstructure:"epsilon"`
}

type PipelineConfig struct {
	Concurrent bool `mapstructure:"concurrent"`
}

type ArtifactsConfig struct {
	UploadDir  string `mapstructure:"upload_dir"`
	OverlayDir string `mapstructure:"overlay_dir"`
	Overlay    bool   `mapstructure:"overlay"`
	KeepUpload bool   `mapstructure:"keep_uploads"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MaxUploadMB int    `mapstructure:"max_upload_mb"`
	Debug       bool   `mapstructure:"debug"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(vp *viper.Viper) {
	regions := region.DefaultConfig()
	clustering := dominant.DefaultOptions()

	vp.SetDefault("models.backend", string(pipeline.BackendSCRFD))
	vp.SetDefault("models.library_path", inference.DefaultLibraryPath)
	vp.SetDefault("models.detector_path", "models/det_10g.onnx")
	vp.SetDefault("models.landmark_path", "models/landmark68.onnx")
	vp.SetDefault("models.detection_size", 640)
	vp.SetDefault("models.conf_threshold", 0.5)
	vp.SetDefault("models.nms_threshold", 0.4)
	vp.SetDefault("models.top_k", 5000)
	vp.SetDefault("models.landmark_input_size", 112)

	vp.SetDefault("regions.hair_lower", regions.Hair.Lower[:])
	vp.SetDefault("regions.hair_upper", regions.Hair.Upper[:])
	vp.SetDefault("regions.skin_lower", regions.Skin.Lower[:])
	vp.SetDefault("regions.skin_upper", regions.Skin.Upper[:])
	vp.SetDefault("regions.lip_padding", regions.LipPadding)

	vp.SetDefault("clustering.attempts", clustering.Attempts)
	vp.SetDefault("clustering.max_iterations", clustering.MaxIterations)
	vp.SetDefault("clustering.epsilon", clustering.Epsilon)

	vp.SetDefault("pipeline.concurrent", false)

	vp.SetDefault("artifacts.upload_dir", "ImgBackup/Uploads")
	vp.SetDefault("artifacts.overlay_dir", "ImgBackup/Colors")
	vp.SetDefault("artifacts.overlay", false)
	vp.SetDefault("artifacts.keep_uploads", true)

	vp.SetDefault("server.addr", ":8080")
	vp.SetDefault("server.max_upload_mb", 16)
	vp.SetDefault("server.debug", false)

	vp.SetDefault("log.level", "info")
	vp.SetDefault("log.development", false)
}

// Load reads configuration. An empty path searches for colorseason.yaml in
// "." and "./config"; a missing file is not an error in that case.
func Load(path string) (*Config, error) {
	vp := viper.New()
	setDefaults(vp)

	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if path != "" {
		vp.SetConfigFile(path)
	} else {
		vp.SetConfigName("colorseason")
		vp.SetConfigType("yaml")
		vp.AddConfigPath(".")
		vp.AddConfigPath("./config")
	}

	if err := vp.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	switch pipeline.Backend(c.Models.Backend) {
	case pipeline.BackendSCRFD, pipeline.BackendYuNet:
	default:
		return fmt.Errorf("invalid config: unknown detector backend %q", c.Models.Backend)
	}

	regions, err := c.Regions.region()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := regions.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Clustering.options().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid config: server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	return nil
}

// ModelConfig converts the models section for pipeline.OpenModels
func (c *Config) ModelConfig() pipeline.ModelConfig {
	return pipeline.ModelConfig{
		Backend:           pipeline.Backend(c.Models.Backend),
		LibraryPath:       c.Models.LibraryPath,
		DetectorPath:      c.Models.DetectorPath,
		LandmarkPath:      c.Models.LandmarkPath,
		DetectionSize:     c.Models.DetectionSize,
		ConfThreshold:     c.Models.ConfThreshold,
		NMSThreshold:      c.Models.NMSThreshold,
		TopK:              c.Models.TopK,
		LandmarkInputSize: c.Models.LandmarkInputSize,
	}
}

// PipelineConfig converts the regions, clustering and pipeline sections.
// It assumes Validate has passed.
func (c *Config) PipelineConfig() pipeline.Config {
	regions, _ := c.Regions.region()
	return pipeline.Config{
		Regions:    regions,
		Clustering: c.Clustering.options(),
		Concurrent: c.Pipeline.Concurrent,
	}
}

func (r RegionsConfig) region() (region.Config, error) {
	cfg := region.Config{LipPadding: r.LipPadding}
	bounds := []struct {
		name string
		src  []float64
		dst  *[3]float64
	}{
		{"regions.hair_lower", r.HairLower, &cfg.Hair.Lower},
		{"regions.hair_upper", r.HairUpper, &cfg.Hair.Upper},
		{"regions.skin_lower", r.SkinLower, &cfg.Skin.Lower},
		{"regions.skin_upper", r.SkinUpper, &cfg.Skin.Upper},
	}
	for _, b := range bounds {
		if len(b.src) != 3 {
			return region.Config{}, fmt.Errorf("%s needs 3 values [H, S, V], got %d", b.name, len(b.src))
		}
		copy(b.dst[:], b.src)
	}
	return cfg, nil
}

func (c ClusteringConfig) options() dominant.Options {
	return dominant.Options{
		Attempts:      c.Attempts,
		MaxIterations: c.MaxIterations,
		Epsilon:       c.Epsilon,
	}
}
