package testutils

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/monovo/rimage/transform"
	"go.viam.com/monovo/spatialmath"
)

// CircularScene is a static cloud of 3D points observed by cameras placed on a horizontal circle
// around it, all looking at its center. World coordinates have y pointing down like the cameras.
type CircularScene struct {
	Intrinsics *transform.PinholeCameraIntrinsics
	// Points are in world coordinates.
	Points []r3.Vector
	Radius float64
	// Angles are the positions of the cameras on the circle, in radians.
	Angles []float64
}

// NewCubeScene returns a cube of n x n x n points with the given spacing, centered on the origin,
// observed by nFrames cameras on a circle of the given radius, starting at angle 0 and separated
// by step radians.
func NewCubeScene(n int, spacing, radius float64, nFrames int, step float64) *CircularScene {
	points := make([]r3.Vector, 0, n*n*n)
	half := float64(n-1) / 2
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				points = append(points, r3.Vector{
					X: (float64(i) - half) * spacing,
					Y: (float64(j) - half) * spacing,
					Z: (float64(k) - half) * spacing,
				})
			}
		}
	}
	angles := make([]float64, nFrames)
	for i := range angles {
		angles[i] = float64(i) * step
	}
	return &CircularScene{
		Intrinsics: &transform.PinholeCameraIntrinsics{
			Width: 640, Height: 480, Fx: 800, Fy: 800, Ppx: 320, Ppy: 240,
		},
		Points: points,
		Radius: radius,
		Angles: angles,
	}
}

// NumFrames returns the number of cameras.
func (s *CircularScene) NumFrames() int {
	return len(s.Angles)
}

// CameraCenter returns the position of camera i in world coordinates.
func (s *CircularScene) CameraCenter(i int) r3.Vector {
	theta := s.Angles[i]
	return r3.Vector{X: s.Radius * math.Sin(theta), Z: -s.Radius * math.Cos(theta)}
}

// CameraRotation returns the rotation of camera i, mapping camera axes to world axes. The optical
// axis points to the center of the circle.
func (s *CircularScene) CameraRotation(i int) *mat.Dense {
	theta := s.Angles[i]
	c, sn := math.Cos(theta), math.Sin(theta)
	// columns are the camera x, y and z axes
	return mat.NewDense(3, 3, []float64{
		c, 0, -sn,
		0, 1, 0,
		sn, 0, c,
	})
}

// CameraPose returns the 4x4 pose of camera i in world coordinates.
func (s *CircularScene) CameraPose(i int) *mat.Dense {
	return spatialmath.NewRigidTransform(s.CameraRotation(i), s.CameraCenter(i))
}

// PoseInFirstCamera returns the pose of camera i in the frame of camera 0.
func (s *CircularScene) PoseInFirstCamera(i int) *mat.Dense {
	return s.CameraMotion(0, i)
}

// CameraMotion returns the pose of camera j in the frame of camera i.
func (s *CircularScene) CameraMotion(i, j int) *mat.Dense {
	return spatialmath.Compose(spatialmath.Invert(s.CameraPose(i)), s.CameraPose(j))
}

// PointMap returns the rotation and translation mapping points from the frame of camera i to the
// frame of camera j: Xj = R Xi + t.
func (s *CircularScene) PointMap(i, j int) (*mat.Dense, r3.Vector) {
	m := spatialmath.Invert(s.CameraMotion(i, j))
	return spatialmath.Rotation(m), spatialmath.Translation(m)
}

// PointsInCamera returns the scene points in the frame of camera i.
func (s *CircularScene) PointsInCamera(i int) []r3.Vector {
	toCamera := spatialmath.Invert(s.CameraPose(i))
	out := make([]r3.Vector, len(s.Points))
	for k, p := range s.Points {
		out[k] = spatialmath.TransformPoint(toCamera, p)
	}
	return out
}

// Project returns the exact pixels of the scene points in camera i.
func (s *CircularScene) Project(i int) []r2.Point {
	pts := s.PointsInCamera(i)
	out := make([]r2.Point, len(pts))
	for k, p := range pts {
		out[k] = s.Intrinsics.Project(p)
	}
	return out
}

// Frames returns one blank image per camera, for sources that need images.
func (s *CircularScene) Frames() []image.Image {
	return BlankFrames(s.NumFrames(), 8, 8)
}

// BlankFrames returns n black gray images of size w x h.
func BlankFrames(n, w, h int) []image.Image {
	frames := make([]image.Image, n)
	for i := range frames {
		frames[i] = image.NewGray(image.Rect(0, 0, w, h))
	}
	return frames
}
