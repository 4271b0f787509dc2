package imaging

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// withFrameSize rewrites the SOF0 header of a baseline JPEG so it declares
// w×h pixels while the body stays as encoded.
func withFrameSize(t *testing.T, data []byte, w, h uint16) []byte {
	out := append([]byte(nil), data...)
	i := bytes.Index(out, []byte{0xff, 0xc0})
	require.GreaterOrEqual(t, i, 0, "no SOF0 marker")
	binary.BigEndian.PutUint16(out[i+5:], h)
	binary.BigEndian.PutUint16(out[i+7:], w)
	return out
}

func TestDecode(t *testing.T) {
	t.Run("jpeg", func(t *testing.T) {
		img, mtype, err := Decode(encodeJPEG(t, gradient(40, 30)))
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", mtype)
		assert.Equal(t, 40, img.Bounds().Dx())
		assert.Equal(t, 30, img.Bounds().Dy())
	})

	t.Run("png", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, gradient(8, 8)))
		_, mtype, err := Decode(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "image/png", mtype)
	})

	t.Run("text renamed to jpg", func(t *testing.T) {
		_, _, err := Decode([]byte("this is definitely not a brain scan\n"))
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("truncated jpeg", func(t *testing.T) {
		data := encodeJPEG(t, gradient(64, 64))
		_, mtype, err := Decode(data[:len(data)/3])
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnsupportedFormat)
		assert.Equal(t, "image/jpeg", mtype)
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := Decode(nil)
		require.ErrorIs(t, err, ErrEmptyImage)
	})

	t.Run("forged frame size", func(t *testing.T) {
		data := withFrameSize(t, encodeJPEG(t, gradient(16, 16)), 65000, 65000)
		assert.Less(t, len(data), 1024)

		img, mtype, err := Decode(data)
		require.ErrorIs(t, err, ErrImageTooLarge)
		assert.Nil(t, img)
		assert.Equal(t, "image/jpeg", mtype)
	})

	t.Run("zero frame size", func(t *testing.T) {
		_, _, err := Decode(withFrameSize(t, encodeJPEG(t, gradient(16, 16)), 0, 16))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrImageTooLarge)
	})
}

func TestDecodeLimit(t *testing.T) {
	data := encodeJPEG(t, gradient(40, 30))

	_, _, err := DecodeLimit(data, 40*30)
	require.NoError(t, err)

	_, _, err = DecodeLimit(data, 40*30-1)
	require.ErrorIs(t, err, ErrImageTooLarge)

	_, _, err = DecodeLimit(withFrameSize(t, data, 20000, 20000), 0)
	require.ErrorIs(t, err, ErrImageTooLarge)
}

func TestNewResizer(t *testing.T) {
	r, err := NewResizer("", 256)
	require.NoError(t, err)
	assert.Equal(t, DefaultMethod, r.Method())
	assert.Equal(t, 256, r.Size())

	_, err = NewResizer("sinc", 256)
	require.ErrorIs(t, err, ErrUnknownMethod)

	_, err = NewResizer("bilinear", 0)
	require.Error(t, err)
}

func TestResizeAllMethods(t *testing.T) {
	src := gradient(512, 384)
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			r, err := NewResizer(method, 256)
			require.NoError(t, err)

			out := r.Resize(src)
			assert.Equal(t, image.Rect(0, 0, 256, 256), out.Bounds())
		})
	}
}

func TestResizeIdempotent(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			r, err := NewResizer(method, 256)
			require.NoError(t, err)

			once := r.Resize(gradient(300, 500))
			twice := r.Resize(once)
			assert.Equal(t, once.Pix, twice.Pix)
		})
	}
}

func TestResizeDeterministic(t *testing.T) {
	r, err := NewResizer("lanczos3", 256)
	require.NoError(t, err)

	src := gradient(123, 77)
	assert.Equal(t, r.Resize(src).Pix, r.Resize(src).Pix)
}

func TestResizeOffsetBounds(t *testing.T) {
	r, err := NewResizer("nearest", 4)
	require.NoError(t, err)

	base := gradient(10, 10)
	sub := base.SubImage(image.Rect(3, 3, 7, 7))
	out := r.Resize(sub)

	assert.Equal(t, image.Rect(0, 0, 4, 4), out.Bounds())
	assert.Equal(t, color.NRGBAModel.Convert(base.At(3, 3)), out.At(0, 0))
}

func TestNormalizeRange(t *testing.T) {
	r, err := NewResizer("bicubic", 256)
	require.NoError(t, err)

	img, _, err := Decode(encodeJPEG(t, gradient(640, 480)))
	require.NoError(t, err)

	tensor, err := Normalize(r.Resize(img), LayoutNHWC)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 256, 256, 3}, tensor.Shape)
	assert.Equal(t, 256*256*3, tensor.Len())

	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %f at %d outside [0,1]", v, i)
		}
	}
}

func TestNormalizeBlackIsZero(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}

	tensor, err := Normalize(img, LayoutNHWC)
	require.NoError(t, err)
	for _, v := range tensor.Data {
		require.Zero(t, v)
	}
}

func TestNormalizeLayouts(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 102, B: 255, A: 255})

	nhwc, err := Normalize(img, LayoutNHWC)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 2, 3}, nhwc.Shape)
	assert.InDeltaSlice(t, []float32{1, 0, 0.2, 0, 0.4, 1}, nhwc.Data, 1e-6)

	nchw, err := Normalize(img, LayoutNCHW)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 1, 2}, nchw.Shape)
	assert.InDeltaSlice(t, []float32{1, 0, 0, 0.4, 0.2, 1}, nchw.Data, 1e-6)

	_, err = Normalize(img, Layout("hwcn"))
	require.Error(t, err)
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, LayoutNHWC, l)

	l, err = ParseLayout("NCHW")
	require.NoError(t, err)
	assert.Equal(t, LayoutNCHW, l)

	_, err = ParseLayout("chw")
	require.Error(t, err)
}
