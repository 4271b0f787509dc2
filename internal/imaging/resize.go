package imaging

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"github.com/anthonynsimon/bild/transform"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// DefaultMethod matches the interpolation Keras uses when loading training
// images from disk.
const DefaultMethod = "nearest"

var ErrUnknownMethod = errors.New("unknown resize method")

// Resampler scales an image to exactly width x height.
type Resampler interface {
	Resample(img image.Image, width, height int) image.Image
}

type nfntResampler struct {
	interp resize.InterpolationFunction
}

func (r nfntResampler) Resample(img image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), img, r.interp)
}

type bildResampler struct {
	filter transform.ResampleFilter
}

func (r bildResampler) Resample(img image.Image, width, height int) image.Image {
	return transform.Resize(img, width, height, r.filter)
}

type drawResampler struct {
	scaler draw.Scaler
}

func (r drawResampler) Resample(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	r.scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

var resamplers = map[string]Resampler{
	"nearest":         nfntResampler{resize.NearestNeighbor},
	"bilinear":        nfntResampler{resize.Bilinear},
	"bicubic":         nfntResampler{resize.Bicubic},
	"mitchell":        nfntResampler{resize.MitchellNetravali},
	"lanczos2":        nfntResampler{resize.Lanczos2},
	"lanczos3":        nfntResampler{resize.Lanczos3},
	"box":             bildResampler{transform.Box},
	"gaussian":        bildResampler{transform.Gaussian},
	"catmullrom":      bildResampler{transform.CatmullRom},
	"approx-bilinear": drawResampler{draw.ApproxBiLinear},
}

// Methods lists the accepted resize method names.
func Methods() []string {
	names := make([]string, 0, len(resamplers))
	for name := range resamplers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupMethod returns the resampler registered under name.
func LookupMethod(name string) (Resampler, error) {
	r, ok := resamplers[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownMethod, name, Methods())
	}
	return r, nil
}

// Resizer scales images to a square target size with a fixed method.
type Resizer struct {
	size      int
	method    string
	resampler Resampler
}

func NewResizer(method string, size int) (*Resizer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}
	if method == "" {
		method = DefaultMethod
	}

	r, err := LookupMethod(method)
	if err != nil {
		return nil, err
	}

	return &Resizer{size: size, method: method, resampler: r}, nil
}

func (r *Resizer) Size() int      { return r.size }
func (r *Resizer) Method() string { return r.method }

// Resize returns a size x size copy of img anchored at the origin. Images
// already at the target size are copied pixel for pixel, so resizing twice
// gives the same result as resizing once.
func (r *Resizer) Resize(img image.Image) *image.NRGBA {
	b := img.Bounds()
	src := img
	if b.Dx() != r.size || b.Dy() != r.size {
		src = r.resampler.Resample(img, r.size, r.size)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, r.size, r.size))
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
