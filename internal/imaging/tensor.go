package imaging

import (
	"fmt"
	"image"
	"image/color"
	"strings"
)

// Channels is the number of color channels fed to the model (RGB).
const Channels = 3

// Layout is the memory order of the batched tensor.
type Layout string

const (
	LayoutNHWC Layout = "nhwc" // channels last, the Keras default
	LayoutNCHW Layout = "nchw" // channels first
)

func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(s)) {
	case "", LayoutNHWC:
		return LayoutNHWC, nil
	case LayoutNCHW:
		return LayoutNCHW, nil
	default:
		return "", fmt.Errorf("unknown tensor layout %q", s)
	}
}

// Tensor is a batch of one normalized image.
type Tensor struct {
	Shape  []int64
	Layout Layout
	Data   []float32
}

func (t *Tensor) Len() int { return len(t.Data) }

// Normalize converts img into a batch-of-one tensor with every 8-bit channel
// divided by 255, so all values lie in [0, 1]. Alpha is dropped.
func Normalize(img image.Image, layout Layout) (*Tensor, error) {
	if layout == "" {
		layout = LayoutNHWC
	}
	if layout != LayoutNHWC && layout != LayoutNCHW {
		return nil, fmt.Errorf("unknown tensor layout %q", layout)
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil, ErrEmptyImage
	}

	plane := width * height
	data := make([]float32, Channels*plane)

	nrgba, fast := img.(*image.NRGBA)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.NRGBA
			if fast {
				off := nrgba.PixOffset(b.Min.X+x, b.Min.Y+y)
				c = color.NRGBA{R: nrgba.Pix[off], G: nrgba.Pix[off+1], B: nrgba.Pix[off+2]}
			} else {
				c = color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			}

			rgb := [Channels]float32{
				float32(c.R) / 255.0,
				float32(c.G) / 255.0,
				float32(c.B) / 255.0,
			}

			pixel := y*width + x
			for ch, v := range rgb {
				if layout == LayoutNCHW {
					data[ch*plane+pixel] = v
				} else {
					data[pixel*Channels+ch] = v
				}
			}
		}
	}

	shape := []int64{1, int64(height), int64(width), Channels}
	if layout == LayoutNCHW {
		shape = []int64{1, Channels, int64(height), int64(width)}
	}

	return &Tensor{Shape: shape, Layout: layout, Data: data}, nil
}
