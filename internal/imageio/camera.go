package imageio

import (
	"fmt"

	"gocv.io/x/gocv"
)

// DefaultWarmupFrames are read and discarded so auto exposure can settle
const DefaultWarmupFrames = 10

// Snapshot grabs one frame from a local camera and returns it as an
// RGB-ordered CV_8UC3 Mat owned by the caller.
func Snapshot(deviceID, warmup int) (gocv.Mat, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to open camera %d: %w", deviceID, err)
	}
	defer webcam.Close()

	// Request 720p; the camera may pick something else
	webcam.Set(gocv.VideoCaptureFrameWidth, 1280)
	webcam.Set(gocv.VideoCaptureFrameHeight, 720)

	frame := gocv.NewMat()
	defer frame.Close()

	for i := 0; i <= max(warmup, 0); i++ {
		if !webcam.Read(&frame) {
			return gocv.NewMat(), fmt.Errorf("failed to read frame from camera %d", deviceID)
		}
	}
	if frame.Empty() || frame.Type() != gocv.MatTypeCV8UC3 {
		return gocv.NewMat(), fmt.Errorf("camera %d returned an unusable frame", deviceID)
	}

	rgb := gocv.NewMat()
	gocv.CvtColor(frame, &rgb, gocv.ColorBGRToRGB)
	return rgb, nil
}
