package main

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

type jobOptions struct {
	input     string
	reference string
	output    string
	inMemory  bool
}

var (
	photoOpts jobOptions
	videoOpts jobOptions
)

var photoCmd = &cobra.Command{
	Use:   "photo",
	Short: "Replace every face in a photo with the face from a reference image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		s := spinner.New(spinner.CharSets[9], 100*time.Millisecond,
			spinner.WithWriter(os.Stderr),
			spinner.WithSuffix(" Swapping faces in "+photoOpts.input))
		s.Start()
		report, err := a.generator.PhotoDeepfake(cmd.Context(), photoOpts.input, photoOpts.reference, photoOpts.output)
		s.Stop()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report)
		return nil
	},
}

var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "Replace every face in a video with the face from a reference image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		run := a.generator.VideoDeepfake
		if videoOpts.inMemory {
			run = a.generator.VideoDeepfakeInMemory
		}
		report, err := run(cmd.Context(), videoOpts.input, videoOpts.reference, videoOpts.output)
		if report != nil {
			fmt.Fprintln(cmd.OutOrStdout(), report)
		}
		return err
	},
}

func init() {
	for _, c := range []struct {
		cmd  *cobra.Command
		opts *jobOptions
		kind string
	}{
		{photoCmd, &photoOpts, "image"},
		{videoCmd, &videoOpts, "video"},
	} {
		c.cmd.Flags().StringVarP(&c.opts.input, "input", "i", "", "Main "+c.kind+" whose faces are replaced")
		c.cmd.Flags().StringVarP(&c.opts.reference, "reference", "r", "", "Image holding exactly one face to swap in")
		c.cmd.Flags().StringVarP(&c.opts.output, "output", "o", "", "Output "+c.kind+" path")
		c.cmd.MarkFlagRequired("input")
		c.cmd.MarkFlagRequired("reference")
		c.cmd.MarkFlagRequired("output")
		rootCmd.AddCommand(c.cmd)
	}
	videoCmd.Flags().BoolVar(&videoOpts.inMemory, "in-memory", false, "Decode the whole video before swapping instead of streaming")
}
