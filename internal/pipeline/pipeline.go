package pipeline

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/dudu/colorseason/internal/detector"
	"github.com/dudu/colorseason/internal/dominant"
	"github.com/dudu/colorseason/internal/imageio"
	"github.com/dudu/colorseason/internal/logger"
	"github.com/dudu/colorseason/internal/region"
)

// Config holds pipeline configuration
type Config struct {
	Regions    region.Config
	Clustering dominant.Options
	Concurrent bool // extract the three regions in parallel
}

// DefaultConfig returns the stock calibration with sequential extraction
func DefaultConfig() Config {
	return Config{
		Regions:    region.DefaultConfig(),
		Clustering: dominant.DefaultOptions(),
	}
}

// ColorResult holds the three dominant colors as "#rrggbb".
// Field order fixes the JSON key order: hair, skin, lip.
type ColorResult struct {
	Hair string `json:"hair"`
	Skin string `json:"skin"`
	Lip  string `json:"lip"`
}

// Timing holds performance timing information
type Timing struct {
	Detection  time.Duration
	Landmarks  time.Duration
	Extraction time.Duration
	Total      time.Duration
}

// Pipeline orchestrates face localization and color extraction.
// It holds no per-call state; Analyze is safe for concurrent use when the
// detectors are.
type Pipeline struct {
	config     Config
	detector   FaceDetector
	landmarker LandmarkDetector
	extractor  *dominant.Extractor
	overlay    OverlaySink
	models     *Models
}

// New creates a pipeline over the given detectors
func New(config Config, det FaceDetector, lm LandmarkDetector) (*Pipeline, error) {
	if det == nil || lm == nil {
		return nil, fmt.Errorf("face detector and landmark detector are required")
	}
	if err := config.Regions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid region config: %w", err)
	}

	ext, err := dominant.NewExtractor(config.Clustering)
	if err != nil {
		return nil, fmt.Errorf("invalid clustering config: %w", err)
	}

	return &Pipeline{
		config:     config,
		detector:   det,
		landmarker: lm,
		extractor:  ext,
	}, nil
}

// Load opens the models described by mc and builds a pipeline that owns them
func Load(mc ModelConfig, config Config) (*Pipeline, error) {
	models, err := OpenModels(mc)
	if err != nil {
		return nil, err
	}

	p, err := New(config, models.Detector, models.Landmarker)
	if err != nil {
		models.Close()
		return nil, err
	}
	p.models = models
	return p, nil
}

// SetOverlaySink enables best-effort overlay export; nil disables it
func (p *Pipeline) SetOverlaySink(sink OverlaySink) {
	p.overlay = sink
}

// AnalyzeBytes decodes raw image bytes and analyzes them.
// Undecodable input fails with imageio.ErrInvalidImage.
func (p *Pipeline) AnalyzeBytes(data []byte) (ColorResult, error) {
	img, err := imageio.Decode(data)
	if err != nil {
		return ColorResult{}, err
	}
	defer img.Close()

	return p.Analyze(img)
}

// Analyze extracts hair, skin and lip colors from an RGB image.
// Failures are *AnalysisError values; img is never modified.
func (p *Pipeline) Analyze(img gocv.Mat) (ColorResult, error) {
	if img.Empty() || img.Type() != gocv.MatTypeCV8UC3 {
		return ColorResult{}, fmt.Errorf("%w: expected a non-empty 8-bit 3-channel image", imageio.ErrInvalidImage)
	}

	totalStart := time.Now()
	var timing Timing

	// START -> FACE_DETECTED
	detectStart := time.Now()
	faces, err := p.detector.Detect(img)
	timing.Detection = time.Since(detectStart)

	if err != nil {
		return ColorResult{}, newError(KindExtraction, StageStart, fmt.Errorf("detection failed: %w", err))
	}
	if len(faces) == 0 {
		return ColorResult{}, newError(KindNoFace, StageStart, nil)
	}

	// Use first detected face
	face := faces[0]
	if len(faces) > 1 {
		logger.Debug("multiple faces detected, using first",
			logger.Options{Key: "faces", Data: len(faces)},
			logger.Options{Key: "box", Data: face.Box})
	}

	// FACE_DETECTED -> LANDMARKS_LOCATED
	landmarkStart := time.Now()
	landmarks, err := p.landmarker.Locate(img, face.Box)
	timing.Landmarks = time.Since(landmarkStart)

	if err != nil {
		return ColorResult{}, newError(KindLandmarks, StageFaceDetected, err)
	}

	// LANDMARKS_LOCATED -> COLORS_EXTRACTED
	extractStart := time.Now()
	result, err := p.extract(img, face.Box, &landmarks)
	timing.Extraction = time.Since(extractStart)

	if err != nil {
		return ColorResult{}, newError(KindExtraction, StageLandmarksLocated, err)
	}

	p.writeOverlay(img, face.Box, &landmarks)

	timing.Total = time.Since(totalStart)
	logger.Debug("colors extracted",
		logger.Options{Key: "colors", Data: result},
		logger.Options{Key: "detection", Data: timing.Detection},
		logger.Options{Key: "landmarks", Data: timing.Landmarks},
		logger.Options{Key: "extraction", Data: timing.Extraction},
		logger.Options{Key: "total", Data: timing.Total})

	return result, nil
}

// extract computes the three region colors. Results are assembled in the
// fixed hair, skin, lip order whether or not the work runs concurrently.
func (p *Pipeline) extract(img gocv.Mat, box detector.FaceBox, landmarks *detector.LandmarkSet) (ColorResult, error) {
	cfg := p.config.Regions
	tasks := [3]struct {
		name string
		run  func() (string, error)
	}{
		{"hair", func() (string, error) { return p.regionColor(region.Hair(img, box, cfg.Hair)) }},
		{"skin", func() (string, error) { return p.regionColor(region.Skin(img, box, cfg.Skin)) }},
		{"lip", func() (string, error) { return p.regionColor(region.Lip(img, landmarks, cfg.LipPadding)) }},
	}

	var colors [3]string
	if p.config.Concurrent {
		var g errgroup.Group
		for i, task := range tasks {
			g.Go(func() error {
				hex, err := guarded(task.name, task.run)
				colors[i] = hex
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return ColorResult{}, err
		}
	} else {
		for i, task := range tasks {
			hex, err := guarded(task.name, task.run)
			if err != nil {
				return ColorResult{}, err
			}
			colors[i] = hex
		}
	}

	return ColorResult{Hair: colors[0], Skin: colors[1], Lip: colors[2]}, nil
}

func (p *Pipeline) regionColor(r region.Region, err error) (string, error) {
	if err != nil {
		return "", err
	}
	defer r.Close()

	return p.extractor.Hex(r.Pixels, r.Mask)
}

// guarded runs fn, turning a panic into an error
func guarded(name string, fn func() (string, error)) (hex string, err error) {
	defer func() {
		if r := recover(); r != nil {
			hex, err = "", fmt.Errorf("%s region panicked: %v", name, r)
		}
	}()

	hex, err = fn()
	if err != nil {
		return "", fmt.Errorf("%s region: %w", name, err)
	}
	return hex, nil
}

// writeOverlay renders and hands off the visualization; failures are only logged
func (p *Pipeline) writeOverlay(img gocv.Mat, box detector.FaceBox, landmarks *detector.LandmarkSet) {
	if p.overlay == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warning("overlay rendering panicked", logger.Options{Key: "panic", Data: r})
		}
	}()

	vis := Render(img, box, landmarks, p.config.Regions.LipPadding)
	defer vis.Close()

	if err := p.overlay.WriteOverlay(vis); err != nil {
		logger.Warning("failed to write overlay", logger.Options{Key: "error", Data: err.Error()})
	}
}

// Close releases pipeline resources it owns
func (p *Pipeline) Close() error {
	if p.models == nil {
		return nil
	}
	err := p.models.Close()
	p.models = nil
	return err
}
