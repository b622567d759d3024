package odometry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/monovo/logging"
	"go.viam.com/monovo/spatialmath"
)

// PairResult is the outcome of processing one frame pair.
type PairResult struct {
	// Pair is the number of the pair in the session, starting at 1.
	Pair           int
	PrevFrameIndex int
	FrameIndex     int
	// Pose is a copy of the cumulative pose after the pair, unchanged if the pair was skipped.
	Pose *mat.Dense
	// Relative is the camera motion of the pair, nil if the pair was skipped.
	Relative *mat.Dense
	// Points are the points triangulated from the pair, in the frame of the previous camera.
	Points   []r3.Vector
	Err      error
	Duration time.Duration
}

// Updated returns true if the pair updated the pose.
func (r PairResult) Updated() bool {
	return r.Err == nil
}

// PoseSink consumes the result of every processed frame pair, in order. Sinks implementing
// io.Closer are closed at the end of a session run.
type PoseSink interface {
	Consume(ctx context.Context, result PairResult) error
}

// TrajectoryRecorder keeps the camera poses of a session and the path of the camera on the ground
// plane (x, z).
type TrajectoryRecorder struct {
	mu    sync.Mutex
	poses []*mat.Dense
}

// NewTrajectoryRecorder returns a recorder whose trajectory starts at start, or at the identity if
// start is nil.
func NewTrajectoryRecorder(start mat.Matrix) *TrajectoryRecorder {
	if start == nil {
		start = spatialmath.Identity()
	}
	return &TrajectoryRecorder{poses: []*mat.Dense{mat.DenseCopyOf(start)}}
}

// Consume records the pose of the result. Skipped pairs repeat the previous pose.
func (tr *TrajectoryRecorder) Consume(ctx context.Context, result PairResult) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	pose := tr.poses[len(tr.poses)-1]
	if result.Pose != nil {
		pose = mat.DenseCopyOf(result.Pose)
	}
	tr.poses = append(tr.poses, pose)
	return nil
}

// Poses returns copies of the recorded poses, starting with the start pose.
func (tr *TrajectoryRecorder) Poses() []*mat.Dense {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return lo.Map(tr.poses, func(p *mat.Dense, _ int) *mat.Dense {
		return mat.DenseCopyOf(p)
	})
}

// Path returns the camera positions projected on the ground plane, as (x, z) points.
func (tr *TrajectoryRecorder) Path() []r2.Point {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return lo.Map(tr.poses, func(p *mat.Dense, _ int) r2.Point {
		t := spatialmath.Translation(p)
		return r2.Point{X: t.X, Y: t.Z}
	})
}

// LoggingSink logs the pose after every pair.
type LoggingSink struct {
	logger logging.Logger
}

// NewLoggingSink returns a sink logging to logger.
func NewLoggingSink(logger logging.Logger) *LoggingSink {
	return &LoggingSink{logger: logger}
}

// Consume logs the 3x4 upper block of the pose and the processing rate of the pair.
func (ls *LoggingSink) Consume(ctx context.Context, result PairResult) error {
	fps := 0.
	if result.Duration > 0 {
		fps = 1 / result.Duration.Seconds()
	}
	if result.Pose == nil {
		ls.logger.Infow("no pose", "pair", result.Pair, "frame", result.FrameIndex)
		return nil
	}
	t := spatialmath.Translation(result.Pose)
	ls.logger.Infow("pose",
		"pair", result.Pair,
		"frame", result.FrameIndex,
		"updated", result.Updated(),
		"x", t.X, "y", t.Y, "z", t.Z,
		"fps", fps,
	)
	ls.logger.CDebugf(ctx, "pose of frame %d:\n%v", result.FrameIndex,
		mat.Formatted(result.Pose.Slice(0, 3, 0, 4), mat.Squeeze()))
	return nil
}

// String describes the result in one line.
func (r PairResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("pair %d (frames %d-%d): skipped: %v", r.Pair, r.PrevFrameIndex, r.FrameIndex, r.Err)
	}
	t := spatialmath.Translation(r.Pose)
	return fmt.Sprintf("pair %d (frames %d-%d): position (%.3f, %.3f, %.3f)",
		r.Pair, r.PrevFrameIndex, r.FrameIndex, t.X, t.Y, t.Z)
}
