package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudu/colorseason/internal/imageio"
	"github.com/dudu/colorseason/internal/pipeline"
	"github.com/dudu/colorseason/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve POST /analyze over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := pipeline.Load(cfg.ModelConfig(), cfg.PipelineConfig())
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	if cfg.Artifacts.Overlay {
		sink, err := imageio.NewFileSink(cfg.Artifacts.OverlayDir)
		if err != nil {
			return err
		}
		p.SetOverlaySink(sink)
	}

	opts := server.Options{
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		Debug:          cfg.Server.Debug,
	}
	if cfg.Artifacts.KeepUpload {
		opts.UploadDir = cfg.Artifacts.UploadDir
	}

	return server.New(p, opts).Run(cmd.Context(), cfg.Server.Addr)
}
