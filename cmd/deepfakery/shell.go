package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/L0G1H/deepfakery/pkg/pipeline"
	"github.com/spf13/cobra"
)

// jobRunner is the part of pipeline.Generator the shell drives.
type jobRunner interface {
	PhotoDeepfake(ctx context.Context, mainPath, refPath, outPath string) (*pipeline.Report, error)
	VideoDeepfake(ctx context.Context, mainPath, refPath, outPath string) (*pipeline.Report, error)
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive photo/video menu (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// runShell builds the generator once and then serves the menu.
func runShell(ctx context.Context, in io.Reader, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return serve(ctx, a.generator, in, out)
}

// serve runs the menu loop until exit, end of input, a fatal job error or
// cancellation. Recoverable job errors are printed and the loop continues.
func serve(ctx context.Context, jobs jobRunner, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	prompt := func(label string) (string, bool) {
		fmt.Fprint(out, label)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprintln(out, `choices: "photo", "video", "exit"`)
		answer, ok := prompt("enter choice > ")
		if !ok {
			return nil
		}

		var run func(ctx context.Context, mainPath, refPath, outPath string) (*pipeline.Report, error)
		var labels [3]string
		switch strings.ToLower(answer) {
		case "exit":
			return nil
		case "photo":
			run = jobs.PhotoDeepfake
			labels = [3]string{"main img path > ", "deepfake img path > ", "output img path > "}
		case "video":
			run = jobs.VideoDeepfake
			labels = [3]string{"main video path > ", "deepfake img path > ", "output video path > "}
		default:
			fmt.Fprintln(out, "invalid syntax")
			fmt.Fprintln(out)
			continue
		}

		var paths [3]string
		for i, label := range labels {
			if paths[i], ok = prompt(label); !ok {
				return nil
			}
		}

		report, err := run(ctx, paths[0], paths[1], paths[2])
		if err != nil {
			if pipeline.IsFatal(err) {
				return err
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		} else {
			fmt.Fprintln(out, report)
		}
		fmt.Fprintln(out)
	}
}
