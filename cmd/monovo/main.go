// Package main runs monocular visual odometry over a directory of frames.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/monovo/logging"
	"go.viam.com/monovo/rimage/transform"
	"go.viam.com/monovo/vision/odometry"
)

const (
	// Flags.
	flagImages   = "images"
	flagConfig   = "config"
	flagStride   = "stride"
	flagPlot     = "plot"
	flagScoring  = "scoring"
	flagPointLog = "point-log-capacity"
	flagDebug    = "debug"
	flagLogLevel = "log-level"

	flagIntrinsics   = "intrinsics"
	flagCameraMatrix = "camera-matrix"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		logging.NewLogger("monovo").Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "monovo",
		Usage: "estimate the trajectory of a camera from a sequence of frames",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagImages,
				Aliases:  []string{"i"},
				Required: true,
				Usage:    "read frames from the images of `DIR`, in file name order",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load odometry configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagIntrinsics,
				Usage: "load the camera intrinsics from the json `FILE`",
			},
			&cli.Float64SliceFlag{
				Name:  flagCameraMatrix,
				Usage: "row-major 3x3 camera matrix `fx,0,ppx,0,fy,ppy,0,0,1`, overrides the focal lengths and principal point",
			},
			&cli.IntFlag{
				Name:  flagStride,
				Usage: "process one frame every `N` frames",
			},
			&cli.StringFlag{
				Name:  flagScoring,
				Usage: "pose hypothesis scoring rule, cheirality_plus_scale or cheirality",
			},
			&cli.IntFlag{
				Name:  flagPointLog,
				Usage: "keep the triangulated points of the last `N` pairs, 0 keeps all of them",
			},
			&cli.StringFlag{
				Name:  flagPlot,
				Usage: "save the x-z trajectory to the png `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "log `LEVEL`, one of debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging, including the full pose of every frame",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	ctx := c.Context
	logger := logging.NewLogger("monovo")
	level, err := logging.LevelFromString(c.String(flagLogLevel))
	if err != nil {
		return err
	}
	if c.Bool(flagDebug) {
		level = logging.DEBUG
		ctx = logging.EnableDebugMode(ctx)
	}
	logger.SetLevel(level)
	defer utils.UncheckedErrorFunc(logger.Sync)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	src, err := odometry.NewDirectorySource(c.String(flagImages))
	if err != nil {
		return err
	}
	logger.Infow("starting visual odometry", "frames", src.Len(), "stride", cfg.Stride, "scoring", cfg.Scoring)

	var opts []odometry.Option
	if c.IsSet(flagCameraMatrix) {
		k, err := cameraMatrix(c.Float64Slice(flagCameraMatrix))
		if err != nil {
			return err
		}
		opts = append(opts, odometry.WithCameraMatrix(k))
	}
	session, err := odometry.NewSession(cfg, logger.Sublogger("odometry"), opts...)
	if err != nil {
		return errors.Wrap(err, "cannot start odometry session")
	}
	recorder := odometry.NewTrajectoryRecorder(nil)
	sinks := []odometry.PoseSink{recorder, odometry.NewLoggingSink(logger.Sublogger("pose"))}
	if out := c.String(flagPlot); out != "" {
		sinks = append(sinks, newPlotSink(out, recorder))
	}
	if err := session.Run(ctx, src, sinks...); err != nil {
		return err
	}

	stats := session.Stats()
	logger.Infow("visual odometry done",
		"frames", stats.Frames, "pairs", stats.Pairs, "updates", stats.Updates, "skipped", stats.Skipped,
		"points", len(session.WorldPoints()))
	return nil
}

// loadConfig reads the configuration file, if any, and applies the flags over it.
func loadConfig(c *cli.Context) (*odometry.Config, error) {
	cfg := odometry.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = odometry.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if path := c.String(flagIntrinsics); path != "" {
		intrinsics, err := transform.NewPinholeCameraIntrinsicsFromJSONFile(path)
		if err != nil {
			return nil, err
		}
		cfg.CamIntrinsics = intrinsics
	}
	if c.IsSet(flagStride) {
		cfg.Stride = c.Int(flagStride)
	}
	if c.IsSet(flagScoring) {
		cfg.Scoring = odometry.ScoringRule(c.String(flagScoring))
	}
	if c.IsSet(flagPointLog) {
		cfg.PointLogCapacity = c.Int(flagPointLog)
	}
	if err := cfg.Validate("odometry"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func cameraMatrix(vals []float64) (*mat.Dense, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("--%s needs 9 values, got %d", flagCameraMatrix, len(vals))
	}
	return mat.NewDense(3, 3, vals), nil
}
