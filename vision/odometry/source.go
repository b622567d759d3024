package odometry

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/monovo/rimage"
)

// FrameSource produces the frames of a sequence in capture order. Next returns io.EOF at the end of
// the sequence.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// SliceSource serves in-memory images.
type SliceSource struct {
	mu     sync.Mutex
	images []image.Image
	pos    int
}

// NewSliceSource returns a source serving images in order.
func NewSliceSource(images []image.Image) *SliceSource {
	return &SliceSource{images: images}
}

// Next returns the next image.
func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.images) {
		return Frame{}, io.EOF
	}
	frame := Frame{Index: s.pos, Image: s.images[s.pos]}
	s.pos++
	return frame, nil
}

// Close does nothing.
func (s *SliceSource) Close() error {
	return nil
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".gif", ".tif", ".tiff", ".ppm"}

// DirectorySource serves the images of a directory sorted by file name. Images are decoded when
// requested.
type DirectorySource struct {
	mu    sync.Mutex
	paths []string
	pos   int
}

// NewDirectorySource lists the images of dir. It fails if dir cannot be read or has no image.
func NewDirectorySource(dir string) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open frame directory %q", dir)
	}
	// os.ReadDir sorts entries by file name
	paths := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		return filepath.Join(dir, e.Name()), !e.IsDir() && lo.Contains(imageExtensions, ext)
	})
	if len(paths) == 0 {
		return nil, errors.Errorf("no image in frame directory %q", dir)
	}
	return &DirectorySource{paths: paths}, nil
}

// Len returns the number of images in the directory.
func (s *DirectorySource) Len() int {
	return len(s.paths)
}

// Next decodes the next image. The position advances even when decoding fails.
func (s *DirectorySource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	if s.pos >= len(s.paths) {
		s.mu.Unlock()
		return Frame{}, io.EOF
	}
	index, path := s.pos, s.paths[s.pos]
	s.pos++
	s.mu.Unlock()

	img, err := rimage.ReadImageFromFile(path)
	if err != nil {
		return Frame{Index: index}, errors.Wrapf(err, "cannot decode frame %d", index)
	}
	return Frame{Index: index, Image: img}, nil
}

// Close does nothing.
func (s *DirectorySource) Close() error {
	return nil
}

// strideSource keeps the frames whose index is a multiple of stride.
type strideSource struct {
	src    FrameSource
	stride int
}

// NewStrideSource returns a source keeping frames 0, stride, 2*stride, ... of src. A stride of 1
// returns src itself.
func NewStrideSource(src FrameSource, stride int) FrameSource {
	if stride <= 1 {
		return src
	}
	return &strideSource{src: src, stride: stride}
}

func (s *strideSource) Next(ctx context.Context) (Frame, error) {
	for {
		frame, err := s.src.Next(ctx)
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return frame, err
		}
		// errors of dropped frames are dropped with them
		if frame.Index%s.stride == 0 {
			return frame, err
		}
	}
}

func (s *strideSource) Close() error {
	return s.src.Close()
}
