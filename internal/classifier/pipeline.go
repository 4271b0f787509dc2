// Package classifier runs one uploaded scan through preprocessing and the
// loaded model and reduces the output to a tumor / no tumor label.
package classifier

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"github.com/Brownie44l1/tumorscan/internal/imaging"
	"github.com/Brownie44l1/tumorscan/internal/model"
)

type Label string

const (
	LabelTumor   Label = "tumor"
	LabelNoTumor Label = "no_tumor"
)

// TumorClass is the class index the model uses for a positive scan.
const TumorClass = 1

const (
	MessageTumor   = "This scan contains a brain tumor."
	MessageNoTumor = "This scan does not contain a brain tumor."
	MessageError   = "Error processing file."
)

func (l Label) Message() string {
	if l == LabelTumor {
		return MessageTumor
	}
	return MessageNoTumor
}

// Model is the loaded classifier the pipeline delegates to.
type Model interface {
	Predict(ctx context.Context, tensor *imaging.Tensor) (*model.Prediction, error)
}

type State int32

const (
	StateIdle State = iota
	StateClassifying
)

func (s State) String() string {
	if s == StateClassifying {
		return "classifying"
	}
	return "idle"
}

type Result struct {
	ID         string    `json:"id"`
	Label      Label     `json:"label"`
	ClassIndex int       `json:"class_index"`
	Scores     []float32 `json:"scores"`
	Digest     string    `json:"digest"`
	Format     string    `json:"format"`
}

func (r *Result) Message() string {
	return r.Label.Message()
}

type Options struct {
	ImageSize    int
	ResizeMethod string
	Layout       imaging.Layout
	// MaxPixels bounds the declared size of a decoded upload. Zero means
	// imaging.DefaultMaxPixels.
	MaxPixels    int64
	Logger       *zap.Logger
}

// OptionsFromMetadata derives preprocessing from the model's metadata. A
// non-empty resizeOverride wins over the metadata's resize method.
func OptionsFromMetadata(md model.Metadata, resizeOverride string, logger *zap.Logger) (Options, error) {
	layout, err := imaging.ParseLayout(md.Layout)
	if err != nil {
		return Options{}, err
	}

	method := md.ResizeMethod
	if resizeOverride != "" {
		method = resizeOverride
	}

	return Options{
		ImageSize:    md.ImageSize,
		ResizeMethod: method,
		Layout:       layout,
		Logger:       logger,
	}, nil
}

// Pipeline turns raw image bytes into a label. It handles one request at a
// time and returns to idle after every call.
type Pipeline struct {
	model   Model
	resizer   *imaging.Resizer
	layout    imaging.Layout
	maxPixels int64
	logger    *zap.Logger

	mu    sync.Mutex
	state atomic.Int32
}

func NewPipeline(m Model, opts Options) (*Pipeline, error) {
	if m == nil {
		return nil, errors.New("model is required")
	}
	if opts.ImageSize == 0 {
		opts.ImageSize = model.DefaultImageSize
	}
	if opts.Layout == "" {
		opts.Layout = imaging.LayoutNHWC
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = imaging.DefaultMaxPixels
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	resizer, err := imaging.NewResizer(opts.ResizeMethod, opts.ImageSize)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		model:     m,
		resizer:   resizer,
		layout:    opts.Layout,
		maxPixels: opts.MaxPixels,
		logger:    opts.Logger,
	}, nil
}

func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) ResizeMethod() string {
	return p.resizer.Method()
}

// Classify decodes raw, resizes it to the model's square input, normalizes it
// to [0,1], runs the model and maps class 1 to LabelTumor. Failures come back
// as *Error; a panic inside the model is recovered as KindPrediction.
func (p *Pipeline) Classify(ctx context.Context, raw []byte) (res *Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.Store(int32(StateClassifying))
	defer p.state.Store(int32(StateIdle))

	digest := blake3.Sum256(raw)
	res = &Result{ID: uuid.NewString(), Digest: hex.EncodeToString(digest[:])}
	log := p.logger.With(zap.String("request_id", res.ID), zap.String("digest", res.Digest))

	defer func() {
		if r := recover(); r != nil {
			err = newError(KindPrediction, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			log.Warn("classification failed", zap.String("kind", string(KindOf(err))), zap.Error(err))
			res = nil
		}
	}()

	img, format, err := imaging.DecodeLimit(raw, p.maxPixels)
	res.Format = format
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedFormat) {
			return nil, newError(KindUnsupportedFormat, err)
		}
		return nil, newError(KindDecode, err)
	}

	bounds := img.Bounds()
	resized := p.resizer.Resize(img)

	tensor, err := imaging.Normalize(resized, p.layout)
	if err != nil {
		return nil, newError(KindShape, err)
	}

	pred, err := p.model.Predict(ctx, tensor)
	if err != nil {
		if errors.Is(err, model.ErrShape) {
			return nil, newError(KindShape, err)
		}
		return nil, newError(KindPrediction, err)
	}

	res.ClassIndex = pred.ClassIndex
	res.Scores = pred.Scores
	res.Label = LabelNoTumor
	if pred.ClassIndex == TumorClass {
		res.Label = LabelTumor
	}

	log.Info("scan classified",
		zap.String("format", format),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()),
		zap.String("resize_method", p.resizer.Method()),
		zap.Int("class_index", res.ClassIndex),
		zap.String("label", string(res.Label)),
	)

	return res, nil
}
