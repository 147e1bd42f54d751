package pipeline

import (
	"gocv.io/x/gocv"

	"github.com/dudu/colorseason/internal/detector"
)

// Backend names the face detector implementation
type Backend string

const (
	BackendSCRFD Backend = "scrfd"
	BackendYuNet Backend = "yunet"
)

// FaceDetector interface for face detection.
// Faces come back in the detector's natural order; an empty slice is not an error.
type FaceDetector interface {
	Detect(img gocv.Mat) ([]detector.Face, error)
}

// LandmarkDetector interface for 68-point landmark localization
type LandmarkDetector interface {
	Locate(img gocv.Mat, box detector.FaceBox) (detector.LandmarkSet, error)
}

// OverlaySink receives the annotated BGR visualization of an analysis.
// The Mat is only valid for the duration of the call.
type OverlaySink interface {
	WriteOverlay(img gocv.Mat) error
}
