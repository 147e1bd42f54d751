package pipeline

import (
	"fmt"
	"io"

	"github.com/dudu/colorseason/internal/detector"
	"github.com/dudu/colorseason/internal/inference"
	"github.com/dudu/colorseason/internal/logger"
)

// ModelConfig describes the model artifacts loaded at startup
type ModelConfig struct {
	Backend           Backend
	LibraryPath       string // onnxruntime shared library
	DetectorPath      string
	LandmarkPath      string
	DetectionSize     int
	ConfThreshold     float32
	NMSThreshold      float32
	TopK              int
	LandmarkInputSize int
}

// Models holds the loaded detectors. They are read-only after loading.
type Models struct {
	Detector   FaceDetector
	Landmarker LandmarkDetector
	closers    []io.Closer
}

// OpenModels initializes ONNX Runtime and loads the detector and landmark models
func OpenModels(config ModelConfig) (*Models, error) {
	// Initialize ONNX Runtime
	if err := inference.Initialize(config.LibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize inference: %w", err)
	}

	m := &Models{}

	switch config.Backend {
	case BackendSCRFD:
		det, err := detector.NewSCRFD(config.DetectorPath, config.DetectionSize, config.ConfThreshold, config.NMSThreshold)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to create detector: %w", err)
		}
		m.Detector = det
		m.closers = append(m.closers, det)
	case BackendYuNet:
		det, err := detector.NewYuNet(config.DetectorPath, config.ConfThreshold, config.NMSThreshold, config.TopK)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to create detector: %w", err)
		}
		m.Detector = det
		m.closers = append(m.closers, det)
	default:
		m.Close()
		return nil, fmt.Errorf("unknown detector backend %q", config.Backend)
	}

	lmConfig := detector.DefaultLandmark68Config(config.LandmarkPath)
	if config.LandmarkInputSize > 0 {
		lmConfig.InputSize = config.LandmarkInputSize
	}
	lm, err := detector.NewLandmark68(lmConfig)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to create landmark detector: %w", err)
	}
	m.Landmarker = lm
	m.closers = append(m.closers, lm)

	logger.Info("models loaded",
		logger.Options{Key: "backend", Data: string(config.Backend)},
		logger.Options{Key: "detector", Data: config.DetectorPath},
		logger.Options{Key: "landmarks", Data: config.LandmarkPath})

	return m, nil
}

// Close releases model resources and shuts down ONNX Runtime
func (m *Models) Close() error {
	var errs []error

	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil

	if err := inference.Shutdown(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
