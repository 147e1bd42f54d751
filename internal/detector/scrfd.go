package detector

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/colorseason/internal/inference"
)

// SCRFD implements the SCRFD face detector
type SCRFD struct {
	session        *inference.Session
	inputSize      int
	confThreshold  float32
	nmsThreshold   float32
	featureStrides []int
	numAnchors     int
}

// NewSCRFD creates a new SCRFD detector
func NewSCRFD(modelPath string, inputSize int, confThreshold, nmsThreshold float32) (*SCRFD, error) {
	if inputSize <= 0 || inputSize%32 != 0 {
		return nil, fmt.Errorf("invalid SCRFD input size %d: must be a positive multiple of 32", inputSize)
	}

	// SCRFD has 1 input and 9 outputs (3 levels × 3 outputs each: score, bbox, kps)
	inputNames := []string{"input.1"}
	outputNames := []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}

	session, err := inference.NewSession(modelPath, inputNames, outputNames)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}

	return &SCRFD{
		session:        session,
		inputSize:      inputSize,
		confThreshold:  confThreshold,
		nmsThreshold:   nmsThreshold,
		featureStrides: []int{8, 16, 32},
		numAnchors:     2, // anchors per position
	}, nil
}

// Detect finds faces in an RGB image. Faces are ordered by descending score.
func (s *SCRFD) Detect(img gocv.Mat) ([]Face, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	origHeight := img.Rows()
	origWidth := img.Cols()

	// Preprocess: resize and normalize
	inputBlob, scale := s.preprocess(img)
	defer inputBlob.Close()

	floatData := bytesToFloat32(inputBlob.ToBytes())

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(s.inputSize), int64(s.inputSize)),
		floatData,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, 9)
	outputTensors := make([]*ort.Tensor[float32], 9)
	defer func() {
		for _, t := range outputTensors {
			if t != nil {
				t.Destroy()
			}
		}
	}()

	for i, stride := range s.featureStrides {
		fm := s.inputSize / stride
		numAnchors := int64(fm * fm * s.numAnchors)

		for j, width := range []int64{1, 4, 10} { // score, bbox, kps
			t, err := inference.CreateEmptyTensor[float32]([]int64{numAnchors, width})
			if err != nil {
				return nil, fmt.Errorf("failed to create output tensor: %w", err)
			}
			outputs[i+3*j] = t
			outputTensors[i+3*j] = t
		}
	}

	err = s.session.Run([]ort.Value{inputTensor}, outputs)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	cands := s.postprocess(outputTensors, scale, origWidth, origHeight)
	cands = nms(cands, s.nmsThreshold)

	faces := make([]Face, 0, len(cands))
	for _, c := range cands {
		box := c.box.FaceBox(origWidth, origHeight)
		if box.Empty() {
			continue
		}
		faces = append(faces, Face{Box: box, Score: c.score})
	}
	return faces, nil
}

// preprocess letterboxes and normalizes the image into an NCHW blob
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	height := img.Rows()
	width := img.Cols()

	scale := float32(s.inputSize) / float32(max(height, width))

	newWidth := max(1, int(float32(width)*scale))
	newHeight := max(1, int(float32(height)*scale))

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	// Letterbox into the top-left corner
	padded := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()
	resized.Close()

	// Already RGB; convert to float and normalize: (x - 127.5) / 128.0
	blob := gocv.NewMat()
	padded.ConvertTo(&blob, gocv.MatTypeCV32FC3)
	padded.Close()

	gocv.AddWeighted(blob, 1.0/128.0, blob, 0, -127.5/128.0, &blob)

	// Convert HWC to CHW (blob format)
	blobNCHW := gocv.BlobFromImage(blob, 1.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	blob.Close()

	return blobNCHW, scale
}

// postprocess decodes model outputs to candidate boxes in source image coordinates
func (s *SCRFD) postprocess(outputs []*ort.Tensor[float32], scale float32, origWidth, origHeight int) []candidate {
	var cands []candidate

	for level, stride := range s.featureStrides {
		fm := s.inputSize / stride

		scoreData := outputs[level].GetData()
		bboxData := outputs[level+3].GetData()

		anchorIdx := 0
		for y := 0; y < fm; y++ {
			for x := 0; x < fm; x++ {
				for a := 0; a < s.numAnchors; a++ {
					score := sigmoid(scoreData[anchorIdx])

					if score > s.confThreshold {
						// Anchor center
						cx := (float32(x) + 0.5) * float32(stride)
						cy := (float32(y) + 0.5) * float32(stride)

						// Decode bbox (distance to edges)
						bboxIdx := anchorIdx * 4
						x1 := (cx - bboxData[bboxIdx]*float32(stride)) / scale
						y1 := (cy - bboxData[bboxIdx+1]*float32(stride)) / scale
						x2 := (cx + bboxData[bboxIdx+2]*float32(stride)) / scale
						y2 := (cy + bboxData[bboxIdx+3]*float32(stride)) / scale

						cands = append(cands, candidate{
							box: BoundingBox{
								X1: clamp(x1, 0, float32(origWidth)),
								Y1: clamp(y1, 0, float32(origHeight)),
								X2: clamp(x2, 0, float32(origWidth)),
								Y2: clamp(y2, 0, float32(origHeight)),
							},
							score: score,
						})
					}
					anchorIdx++
				}
			}
		}
	}

	return cands
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func bytesToFloat32(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		result[i] = math.Float32frombits(bits)
	}
	return result
}
