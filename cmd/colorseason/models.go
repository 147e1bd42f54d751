package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/colorseason/internal/inference"
	"github.com/dudu/colorseason/internal/pipeline"
)

var modelsCmd = &cobra.Command{
	Use:   "models [model.onnx...]",
	Short: "Check that ONNX Runtime can load models and print their inputs and outputs",
	Long:  "With no arguments, checks the detector and landmark models from the config.",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		paths = []string{cfg.Models.LandmarkPath}
		if pipeline.Backend(cfg.Models.Backend) == pipeline.BackendSCRFD {
			paths = append([]string{cfg.Models.DetectorPath}, paths...)
		}
	}

	if err := inference.Initialize(cfg.Models.LibraryPath); err != nil {
		return err
	}
	defer inference.Shutdown()

	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range paths {
		fmt.Fprintf(out, "%s\n", path)
		if err := describeModel(cmd, path); err != nil {
			fmt.Fprintf(out, "  error: %v\n", err)
			failed++
		}
		fmt.Fprintln(out)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d models failed to load", failed, len(paths))
	}
	return nil
}

func describeModel(cmd *cobra.Command, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return fmt.Errorf("failed to get model info: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  KIND\tNAME\tSHAPE\tTYPE")
	for _, info := range inputs {
		fmt.Fprintf(w, "  input\t%s\t%v\t%v\n", info.Name, info.Dimensions, info.DataType)
	}
	for _, info := range outputs {
		fmt.Fprintf(w, "  output\t%s\t%v\t%v\n", info.Name, info.Dimensions, info.DataType)
	}
	w.Flush()

	metadata, err := ort.GetModelMetadata(path)
	if err != nil {
		return nil
	}
	defer metadata.Destroy()
	if producer, err := metadata.GetProducerName(); err == nil && producer != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  producer: %s\n", producer)
	}
	if version, err := metadata.GetVersion(); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "  version: %d\n", version)
	}
	return nil
}
