package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/dudu/colorseason/internal/imageio"
	"github.com/dudu/colorseason/internal/pipeline"
)

var (
	overlayPath string
	cameraIndex int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [image]",
	Short: "Print the hair, skin and lip colors of one photo as JSON",
	Long:  "Analyzes the given image file, or a single camera snapshot when --camera is set.",
	Args: func(cmd *cobra.Command, args []string) error {
		if cameraIndex >= 0 {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&overlayPath, "overlay", "", "write the annotated visualization to this file")
	analyzeCmd.Flags().IntVar(&cameraIndex, "camera", -1, "capture the photo from this camera device instead of a file")
	rootCmd.AddCommand(analyzeCmd)
}

func loadImage(args []string) (gocv.Mat, error) {
	if cameraIndex >= 0 {
		return imageio.Snapshot(cameraIndex, imageio.DefaultWarmupFrames)
	}
	return imageio.ReadFile(args[0])
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	p, err := pipeline.Load(cfg.ModelConfig(), cfg.PipelineConfig())
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	switch {
	case overlayPath != "":
		p.SetOverlaySink(imageio.PathSink(overlayPath))
	case cfg.Artifacts.Overlay:
		sink, err := imageio.NewFileSink(cfg.Artifacts.OverlayDir)
		if err != nil {
			return err
		}
		p.SetOverlaySink(sink)
	}

	img, err := loadImage(args)
	if err != nil {
		return err
	}
	defer img.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	result, err := p.Analyze(img)
	if err != nil {
		var ae *pipeline.AnalysisError
		if errors.As(err, &ae) {
			_ = enc.Encode(map[string]any{
				"error": map[string]string{"code": string(ae.Kind), "message": ae.Message},
			})
		}
		return err
	}

	return enc.Encode(map[string]any{"colors": result})
}
