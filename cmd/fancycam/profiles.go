package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-fancycamera/internal/app"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

func newProfilesCmd(opts *options) *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Show the profile each quality resolves to on the selected backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if backend != "" {
				cfg.Backend.Kind = backend
			}
			cam, err := app.NewBackend(cfg, opts.logger)
			if err != nil {
				return err
			}

			// Opening lets hardware backends probe which profiles they support.
			if err := cam.Open(context.Background(), cfg.Camera); err != nil {
				return err
			}
			defer cam.Close()

			resolver := profile.NewResolver(cam.Catalog(), opts.logger)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUALITY\tRESOLVED\tSIZE\tFPS\tVIDEO\tAUDIO\tFORMAT")
			for _, q := range profile.Qualities() {
				p, err := resolver.Resolve(q)
				if err != nil {
					fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t%v\n", q, err)
					continue
				}
				p = cfg.Camera.CapProfile(p)
				fmt.Fprintf(w, "%s\t%s\t%dx%d\t%d\t%s %dk\t%s %dk\t%s\n",
					q, p.Quality, p.Width, p.Height, p.VideoFrameRate,
					p.VideoCodec, p.VideoBitrate/1000,
					p.AudioCodec, p.AudioBitrate/1000,
					p.FileFormat)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "camera backend: mock or gocv")
	return cmd
}
