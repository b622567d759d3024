package odometry

import (
	"context"
	"io"
	"maps"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/monovo/logging"
	"go.viam.com/monovo/rimage/transform"
	"go.viam.com/monovo/spatialmath"
)

// Stats counts what a session did.
type Stats struct {
	Frames  int
	Pairs   int
	Updates int
	// Skipped counts the skipped pairs by reason.
	Skipped map[string]int
}

// Option configures a Session.
type Option func(*Session)

// WithMatcher replaces the ORB matcher of the session.
func WithMatcher(m Matcher) Option {
	return func(s *Session) {
		s.matcher = m
	}
}

// WithEstimator replaces the RANSAC essential matrix estimator of the session.
func WithEstimator(e Estimator) Option {
	return func(s *Session) {
		s.estimator = e
	}
}

// WithClock sets the clock used to time frame pairs.
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithStartPose sets the pose of the first camera. It defaults to the identity.
func WithStartPose(pose mat.Matrix) Option {
	return func(s *Session) {
		s.startPose = pose
	}
}

// WithCameraMatrix sets the intrinsics of the camera from its 3x3 matrix [[fx 0 ppx] [0 fy ppy] [0 0 1]],
// replacing the focal lengths and principal point of the configuration. The image size is kept.
func WithCameraMatrix(k mat.Matrix) Option {
	return func(s *Session) {
		s.cameraMatrix = k
	}
}

// WithPointLogEvictionCallback sets the function receiving the point log entries evicted past the
// configured capacity.
func WithPointLogEvictionCallback(f func(PointLogEntry)) Option {
	return func(s *Session) {
		s.onEvict = f
	}
}

// Session estimates the trajectory of a camera from consecutive frames. Frames are processed one
// pair at a time, in order; the pose, point log and stats can be read concurrently.
type Session struct {
	cfg           *Config
	logger        logging.Logger
	clock         clock.Clock
	matcher       Matcher
	estimator     Estimator
	disambiguator *Disambiguator
	startPose     mat.Matrix
	cameraMatrix  mat.Matrix
	onEvict       func(PointLogEntry)

	// processMu serializes frame processing.
	processMu sync.Mutex
	prev      *Frame

	mu         sync.RWMutex
	integrator *Integrator
	points     *PointLog
	stats      Stats
}

// NewSession returns a session for cfg, with the ORB matcher and RANSAC estimator unless replaced by
// options.
func NewSession(cfg *Config, logger logging.Logger, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate("odometry"); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:    cfg,
		logger: logger,
		clock:  clock.New(),
		stats:  Stats{Skipped: map[string]int{}},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cameraMatrix != nil {
		intrinsics, err := transform.NewPinholeCameraIntrinsicsFromMatrix(
			s.cameraMatrix, cfg.CamIntrinsics.Width, cfg.CamIntrinsics.Height)
		if err != nil {
			return nil, errors.Wrap(err, "invalid camera matrix")
		}
		withMatrix := *cfg
		withMatrix.CamIntrinsics = intrinsics
		cfg = &withMatrix
		s.cfg = cfg
	}

	var err error
	if s.matcher == nil {
		if s.matcher, err = NewORBMatcher(cfg, logger.Sublogger("matcher")); err != nil {
			return nil, err
		}
	}
	if s.estimator == nil {
		if s.estimator, err = NewRANSACEstimator(cfg.CamIntrinsics, cfg.RANSACCfg, logger.Sublogger("estimator")); err != nil {
			return nil, err
		}
	}
	if s.disambiguator, err = NewDisambiguator(cfg.CamIntrinsics, cfg.Scoring, cfg.ScaleEpsilon); err != nil {
		return nil, err
	}
	if s.integrator, err = NewIntegrator(s.startPose); err != nil {
		return nil, err
	}
	s.points = NewPointLog(cfg.PointLogCapacity, s.onEvict)
	return s, nil
}

// Pose returns a copy of the cumulative pose.
func (s *Session) Pose() *mat.Dense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.integrator.Pose()
}

// Points returns the point log of the session.
func (s *Session) Points() *PointLog {
	return s.points
}

// WorldPoints returns all the logged points in the frame of the first camera.
func (s *Session) WorldPoints() []r3.Vector {
	return s.points.WorldPoints()
}

// Stats returns a copy of the session counters.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := s.stats
	stats.Skipped = make(map[string]int, len(s.stats.Skipped))
	for k, v := range s.stats.Skipped {
		stats.Skipped[k] = v
	}
	return stats
}

// Snapshot is a consistent view of a session between two updates.
type Snapshot struct {
	Pose   *mat.Dense
	Stats  Stats
	Points []PointLogEntry
}

// Snapshot returns the pose, the counters and the point log entries as of the last completed update.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := s.stats
	stats.Skipped = maps.Clone(s.stats.Skipped)
	return Snapshot{Pose: s.integrator.Pose(), Stats: stats, Points: s.points.Entries()}
}

// EstimateRelativeMotion computes the motion between two frames without changing the session.
func (s *Session) EstimateRelativeMotion(prev, cur Frame) (*Disambiguation, error) {
	c, err := s.matcher.Match(prev, cur)
	if err != nil {
		return nil, err
	}
	if c.Len() <= s.cfg.MinCorrespondences {
		return nil, newInsufficientFeaturesError("%d correspondences between frames %d and %d, need more than %d",
			c.Len(), prev.Index, cur.Index, s.cfg.MinCorrespondences)
	}
	essMat, err := s.estimator.Estimate(c)
	if err != nil {
		return nil, err
	}
	return s.disambiguator.Disambiguate(essMat, c)
}

// ProcessFrame processes the pair made of the previous frame and frame. It returns nil for the first
// frame of the session. Failures are reported in the result and leave the pose unchanged.
func (s *Session) ProcessFrame(frame Frame) *PairResult {
	s.processMu.Lock()
	defer s.processMu.Unlock()

	s.mu.Lock()
	s.stats.Frames++
	s.mu.Unlock()

	prev := s.prev
	s.prev = &frame
	if prev == nil {
		return nil
	}

	start := s.clock.Now()
	s.mu.Lock()
	s.stats.Pairs++
	pair := s.stats.Pairs
	s.mu.Unlock()

	result := PairResult{Pair: pair, PrevFrameIndex: prev.Index, FrameIndex: frame.Index}
	motion, err := s.EstimateRelativeMotion(*prev, frame)
	if err == nil {
		err = s.commit(pair, frame.Index, motion, &result)
	}
	result.Err = err
	result.Duration = s.clock.Since(start)
	if err != nil {
		reason := SkipReason(err)
		s.mu.Lock()
		s.stats.Skipped[reason]++
		result.Pose = s.integrator.Pose()
		s.mu.Unlock()
		s.logger.Warnw("skipping frame pair", "pair", pair, "frame", frame.Index, "reason", reason, "error", err)
		return &result
	}
	s.logger.Debugw("processed frame pair",
		"pair", pair, "frame", frame.Index, "points", len(result.Points), "duration", result.Duration)
	return &result
}

// commit integrates the motion of a pair and logs its points. The pose and the point log are
// updated under the same lock.
func (s *Session) commit(pair, frameIndex int, motion *Disambiguation, result *PairResult) error {
	s.mu.Lock()
	before := s.integrator.Pose()
	pose, err := s.integrator.Integrate(motion.Relative)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	worldPoints := make([]r3.Vector, len(motion.Points))
	for i, p := range motion.Points {
		worldPoints[i] = spatialmath.TransformPoint(before, p)
	}
	evicted := s.points.push(PointLogEntry{
		Pair:        pair,
		FrameIndex:  frameIndex,
		Points:      motion.Points,
		WorldPoints: worldPoints,
	})
	s.stats.Updates++
	s.mu.Unlock()

	s.points.flush(evicted)
	result.Pose = pose
	result.Relative = motion.Relative
	result.Points = motion.Points
	return nil
}

// Run processes every frame of src, applying the configured stride, and hands the result of every
// pair to the sinks. It stops between two pairs when ctx is done. Errors of individual pairs are not
// returned. The source and the sinks implementing io.Closer are closed before returning.
func (s *Session) Run(ctx context.Context, src FrameSource, sinks ...PoseSink) (err error) {
	defer func() {
		err = multierr.Combine(err, src.Close())
		for _, sink := range sinks {
			if closer, ok := sink.(io.Closer); ok {
				err = multierr.Combine(err, closer.Close())
			}
		}
	}()

	frames := NewStrideSource(src, s.cfg.Stride)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := frames.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.logger.Warnw("skipping unreadable frame", "frame", frame.Index, "error", err)
			continue
		}
		result := s.ProcessFrame(frame)
		if result == nil {
			continue
		}
		for _, sink := range sinks {
			if err := sink.Consume(ctx, *result); err != nil {
				return errors.Wrapf(err, "pose sink failed on pair %d", result.Pair)
			}
		}
	}
}
