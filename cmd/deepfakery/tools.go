package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/L0G1H/deepfakery/pkg/acceleration"
	"github.com/L0G1H/deepfakery/pkg/config"
	"github.com/L0G1H/deepfakery/pkg/logging"
	"github.com/L0G1H/deepfakery/pkg/media"
	"github.com/L0G1H/deepfakery/pkg/recognition"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download-model",
	Short: "Download the swap model if it is not present",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Infof("Model path: %s", cfg.Model.Path)
		return provisionModel(cmd.Context(), cfg)
	},
}

var (
	annotatePath string
	useReference bool
)

var facesCmd = &cobra.Command{
	Use:   "faces <image>",
	Short: "List the faces detected in an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ExpandHome(args[0])
		img, err := media.ReadImage(path)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var loc recognition.Locator = a.mainLocator
		if useReference {
			loc = a.worker
		}
		faces, err := loc.Detect(cmd.Context(), img)
		if err != nil {
			return err
		}

		printFaces(cmd.OutOrStdout(), loc.Name(), faces)

		if annotatePath != "" {
			if err := media.WriteImage(media.Annotate(img, faces), config.ExpandHome(annotatePath)); err != nil {
				return err
			}
			logging.Infof("Annotated image written to %s", annotatePath)
		}
		return nil
	},
}

func printFaces(out io.Writer, backend string, faces []recognition.Face) {
	fmt.Fprintf(out, "%d face(s) detected by %s\n", len(faces), backend)
	if len(faces) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tBOX\tSCORE\tLANDMARKS\tEMBEDDING")
	for i, f := range faces {
		fmt.Fprintf(w, "%d\t%v\t%.3f\t%t\t%d\n", i, f.Box, f.Score, f.HasLandmarks(), len(f.Embedding))
	}
	w.Flush()
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printConfig(cmd.OutOrStdout(), cfg)
	},
}

func printConfig(out io.Writer, cfg *config.Config) {
	logging.Debug("Showing configuration")

	checksum := cfg.Model.Checksum
	if checksum == "" {
		checksum = "(none)"
	}

	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintln(out, "======================")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[Model]")
	fmt.Fprintf(out, "  URL:             %s\n", cfg.Model.URL)
	fmt.Fprintf(out, "  Path:            %s\n", cfg.Model.Path)
	fmt.Fprintf(out, "  Checksum:        %s\n", checksum)
	fmt.Fprintf(out, "  Timeout:         %d seconds\n", cfg.Model.Timeout)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[Engine]")
	fmt.Fprintf(out, "  Command:         %s %v\n", cfg.Engine.Command, cfg.Engine.Args)
	fmt.Fprintf(out, "  Model Pack:      %s\n", cfg.Engine.Pack)
	fmt.Fprintf(out, "  Det Size:        %dx%d\n", cfg.Engine.DetSize, cfg.Engine.DetSize)
	fmt.Fprintf(out, "  Backend:         %s\n", cfg.Engine.Backend)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[Detection]")
	fmt.Fprintf(out, "  Backend:         %s\n", cfg.Detection.Backend)
	fmt.Fprintf(out, "  Dlib Models:     %s\n", cfg.Detection.Dlib.ModelDir)
	fmt.Fprintf(out, "  Pigo Cascade:    %s\n", cfg.Detection.Pigo.Cascade)
	fmt.Fprintf(out, "  AWS Region:      %s\n", cfg.Detection.Rekognition.Region)
	fmt.Fprintf(out, "  Debug Dir:       %s\n", cfg.Detection.DebugDir)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[Video]")
	fmt.Fprintf(out, "  Codec:           %s\n", cfg.Video.Codec)
	fmt.Fprintf(out, "  Progress Every:  %d frames\n", cfg.Video.ProgressInterval)
	fmt.Fprintf(out, "  Progress Bar:    %t\n", cfg.Video.ProgressBar)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[Notify]")
	fmt.Fprintf(out, "  Enabled:         %t\n", cfg.Notify.Enabled)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[Logging]")
	fmt.Fprintf(out, "  Level:           %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  File:            %s\n", cfg.Logging.File)
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List detected acceleration backends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := acceleration.NewManager()
		accelCfg := acceleration.DefaultConfig()
		if b, err := acceleration.ParseBackend(cfg.Engine.Backend); err == nil {
			accelCfg.PreferredBackend = b
		}
		if err := m.Initialize(accelCfg); err != nil {
			return err
		}
		printBackends(cmd.OutOrStdout(), m.SortedBackends(), m.GetActiveBackend())
		return nil
	},
}

func printBackends(out io.Writer, backends []*acceleration.BackendInfo, active acceleration.Backend) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tBACKEND\tNAME\tDEVICE\tVERSION\tPROVIDER")
	for _, b := range backends {
		mark := ""
		if b.Backend == active {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", mark, b.Backend, b.Name, b.DeviceName, b.Version, b.Backend.Provider())
	}
	w.Flush()
	for _, b := range backends {
		if b.Backend == active && b.Warning != "" {
			fmt.Fprintf(out, "\nWarning: %s\n", b.Warning)
		}
	}
}

func init() {
	facesCmd.Flags().StringVar(&annotatePath, "annotate", "", "Write a copy of the image with detected faces drawn")
	facesCmd.Flags().BoolVar(&useReference, "reference", false, "Use the engine detector that finds reference faces")

	rootCmd.AddCommand(downloadCmd, facesCmd, configCmd, backendsCmd)
}
