package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-fancycamera/internal/httpc"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status map[string]any
			if err := httpc.New(opts.server).Get(cmd.Context(), "/api/status", &status); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func newPhotoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "photo",
		Short: "Take a photo on a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			var photo map[string]any
			if err := httpc.New(opts.server).Post(cmd.Context(), "/api/photo", nil, &photo); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), photo)
		},
	}
}

func newRecordCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Start or stop recording on a running service",
	}
	for _, action := range []string{"start", "stop"} {
		path := "/api/recording/" + action
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: action + " recording",
			RunE: func(cmd *cobra.Command, args []string) error {
				var out map[string]any
				if err := httpc.New(opts.server).Post(cmd.Context(), path, nil, &out); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			},
		})
	}
	return cmd
}

func newOrientCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "orient DEGREES",
		Short: "Feed an orientation reading to a running service",
		Long:  "Feed an orientation reading in degrees (0-359) to a running service. Pass -1 (device flat) after --, e.g. fancycam orient -- -1.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			degrees, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("degrees must be an integer: %w", err)
			}
			var out map[string]any
			if err := httpc.New(opts.server).Post(cmd.Context(), "/api/orientation", map[string]int{"degrees": degrees}, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
