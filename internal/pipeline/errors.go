package pipeline

import (
	"errors"
	"fmt"
)

// Kind identifies one of the three terminal analysis failures
type Kind string

const (
	KindNoFace     Kind = "no_face_detected"
	KindLandmarks  Kind = "landmark_extraction_failed"
	KindExtraction Kind = "feature_extraction_failed"
)

// Stage is a state of the analysis state machine
type Stage string

const (
	StageStart            Stage = "start"
	StageFaceDetected     Stage = "face_detected"
	StageLandmarksLocated Stage = "landmarks_located"
	StageColorsExtracted  Stage = "colors_extracted"
)

var userMessages = map[Kind]string{
	KindNoFace:     "No face detected. Please upload a clear, front-facing photo.",
	KindLandmarks:  "Could not locate facial landmarks. Please upload a clear, front-facing photo.",
	KindExtraction: "Could not analyze facial features. Please make sure the face is clearly visible.",
}

// Sentinels for errors.Is
var (
	ErrNoFaceDetected     = &AnalysisError{Kind: KindNoFace, Message: userMessages[KindNoFace]}
	ErrLandmarkExtraction = &AnalysisError{Kind: KindLandmarks, Message: userMessages[KindLandmarks]}
	ErrFeatureExtraction  = &AnalysisError{Kind: KindExtraction, Message: userMessages[KindExtraction]}
)

// AnalysisError is a typed analysis failure.
// Stage is the last state reached before failing; Message is safe to show users.
type AnalysisError struct {
	Kind    Kind
	Stage   Stage
	Message string
	Err     error
}

func newError(kind Kind, stage Stage, err error) *AnalysisError {
	return &AnalysisError{Kind: kind, Stage: stage, Message: userMessages[kind], Err: err}
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is matches any AnalysisError of the same kind
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the failure kind of err, or "" when err is not an AnalysisError
func KindOf(err error) Kind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
