package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
)

// DerivedQuality is the JPEG quality of every derived image.
const DerivedQuality = 90

// Processor runs derivation operations on decoded images.
type Processor struct {
	logger *slog.Logger
	trace  bool
}

// NewProcessor creates a processor; trace logs every intermediate step.
func NewProcessor(logger *slog.Logger, trace bool) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger, trace: trace}
}

// Decode reads an image, honouring EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
	}
	return img, nil
}

// EncodeJPEG encodes a derived image.
func EncodeJPEG(img image.Image) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(DerivedQuality)); err != nil {
		return nil, fmt.Errorf("image encode error: %w", err)
	}
	return buf, nil
}

// Process applies ops in order and returns the new image. src is never
// modified, so several derivations can share one decoded source.
func (p *Processor) Process(src image.Image, ops []domain.Operation) (image.Image, error) {
	working := src
	for _, op := range ops {
		if p.trace {
			p.logger.Info("derivation operation", "operation", op.Operation, "target", op.TargetSize, "mode", op.ResizeMode.String())
		}

		var next image.Image
		var err error
		switch op.Operation {
		case domain.OperationResize:
			next, err = p.resize(working, op)
		default:
			err = fmt.Errorf("%w: %q", domain.ErrUnknownOperation, op.Operation)
		}
		if err != nil {
			return nil, err
		}
		working = next
	}
	if p.trace {
		p.logger.Info("derivation operations complete", "size", working.Bounds().Size().String())
	}
	return working, nil
}

func (p *Processor) resize(img image.Image, op domain.Operation) (image.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tw, th := op.TargetSize[0], op.TargetSize[1]
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInvalidSource)
	}
	if tw <= 0 || th <= 0 {
		return nil, fmt.Errorf("%w: target size %dx%d", domain.ErrInvalidDerivations, tw, th)
	}

	switch op.ResizeMode {
	case domain.ResizeMaximumSize:
		out := imaging.Fit(img, tw, th, imaging.Lanczos)
		p.traceStep("fitting", b.Size(), out.Bounds().Size())
		return out, nil
	case domain.ResizeMinimumSize:
		scale := math.Max(float64(tw)/float64(w), float64(th)/float64(h))
		nw := int(math.Ceil(float64(w)*scale - 1e-9))
		nh := int(math.Ceil(float64(h)*scale - 1e-9))
		out := imaging.Resize(img, max(nw, 1), max(nh, 1), imaging.Lanczos)
		p.traceStep("scaling", b.Size(), out.Bounds().Size())
		return out, nil
	case domain.ResizeCrop, domain.ResizeExpand:
	default:
		return nil, fmt.Errorf("%w: resize mode %d", domain.ErrInvalidDerivations, op.ResizeMode)
	}

	// bring the image to the target aspect ratio first, by cropping or
	// padding along one axis
	current := float64(w) / float64(h)
	target := float64(tw) / float64(th)
	tooWide := current > target

	var nw, nh int
	if (op.ResizeMode == domain.ResizeCrop && tooWide) || (op.ResizeMode == domain.ResizeExpand && !tooWide) {
		nw, nh = int(float64(h)*target), h
	} else {
		nw, nh = w, int(float64(w)/target)
	}
	nw, nh = max(nw, 1), max(nh, 1)

	// offsets go negative when expanding
	x, y := anchorOffsets(op, w, h, nw, nh)

	var next image.Image
	if op.ResizeMode == domain.ResizeCrop {
		box := image.Rect(x, y, x+nw, y+nh).Add(b.Min)
		next = imaging.Crop(img, box)
		p.traceStep("cropping", b.Size(), next.Bounds().Size())
	} else {
		bg := color.NRGBA{A: 0xff}
		if op.BackgroundColor != nil {
			bg = op.BackgroundColor.RGBA()
		}
		canvas := imaging.New(nw, nh, bg)
		next = imaging.Paste(canvas, img, image.Pt(-x, -y))
		p.traceStep("expanding", b.Size(), next.Bounds().Size())
	}

	out := imaging.Fit(next, tw, th, imaging.Lanczos)
	p.traceStep("resizing", next.Bounds().Size(), out.Bounds().Size())
	return out, nil
}

func anchorOffsets(op domain.Operation, w, h, nw, nh int) (int, int) {
	var x, y int
	switch op.AnchorHorizontal {
	case domain.AnchorLeft:
		x = 0
	case domain.AnchorRight:
		x = w - nw
	default:
		x = (w - nw) / 2
	}
	switch op.AnchorVertical {
	case domain.AnchorTop:
		y = 0
	case domain.AnchorBottom:
		y = h - nh
	default:
		y = (h - nh) / 2
	}
	return x, y
}

func (p *Processor) traceStep(step string, from, to image.Point) {
	if p.trace {
		p.logger.Info("derivation step", "step", step, "from", from.String(), "to", to.String())
	}
}
