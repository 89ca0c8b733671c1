package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"leaflens/internal/config"
)

// ContentTypeJPEG is the content type of every re-encoded output.
const ContentTypeJPEG = "image/jpeg"

const qualityEpsilon = 1e-9

// RawImage is an uploaded photo before compression.
type RawImage struct {
	Data        []byte
	ContentType string
	Size        int
}

// CompressedImage is guaranteed to fit the target passed to Compress.
type CompressedImage struct {
	Data         []byte
	ContentType  string
	Width        int
	Height       int
	Quality      float64
	MaxDimension int
	Attempts     int
	// Identity is set when the raw bytes were already within budget and
	// returned unchanged.
	Identity bool
}

// Size returns the encoded byte length.
func (c CompressedImage) Size() int { return len(c.Data) }

// Compressor shrinks images with a quality-first, then resolution loop.
type Compressor struct {
	opts config.Compression
}

// New builds a Compressor from compression settings.
func New(opts config.Compression) *Compressor {
	return &Compressor{opts: opts}
}

// attemptState is the explicit loop state of one Compress call.
type attemptState struct {
	quality float64
	maxDim  int
	attempt int
}

// next advances the state after an over-budget attempt. Quality steps down to
// the floor first; once there the long edge shrinks by the ratio and quality
// resets upward. It reports false when neither knob can move further.
func (s *attemptState) next(opts config.Compression) bool {
	if s.quality > opts.QualityFloor+qualityEpsilon {
		s.quality = math.Max(opts.QualityFloor, s.quality-opts.QualityStep)
		return true
	}
	if s.maxDim <= opts.MinDimension {
		return false
	}
	s.maxDim = max(opts.MinDimension, int(math.Floor(float64(s.maxDim)*opts.DimensionRatio)))
	s.quality = opts.QualityReset
	return true
}

// Compress returns raw re-encoded as JPEG so that it fits targetBytes. Input
// already within budget is returned unchanged. Undecodable input fails with
// *DecodeError; an unmet budget fails with *CompressionExhaustedError.
func (c *Compressor) Compress(raw RawImage, targetBytes int) (CompressedImage, error) {
	if targetBytes <= 0 {
		targetBytes = c.opts.TargetBytes
	}
	img, contentType, err := decode(raw)
	if err != nil {
		return CompressedImage{}, err
	}
	bounds := img.Bounds()

	if len(raw.Data) <= targetBytes {
		return CompressedImage{
			Data:         raw.Data,
			ContentType:  contentType,
			Width:        bounds.Dx(),
			Height:       bounds.Dy(),
			Quality:      1,
			MaxDimension: max(bounds.Dx(), bounds.Dy()),
			Attempts:     1,
			Identity:     true,
		}, nil
	}

	flat := flatten(img)
	state := attemptState{quality: c.opts.InitialQuality, maxDim: c.opts.MaxDimension, attempt: 1}
	smallest := math.MaxInt
	for ; state.attempt <= c.opts.MaxAttempts; state.attempt++ {
		scaled := resize(flat, state.maxDim)
		encoded, err := encodeJPEG(scaled, state.quality)
		if err != nil {
			return CompressedImage{}, fmt.Errorf("encode jpeg: %w", err)
		}
		if len(encoded) <= targetBytes {
			b := scaled.Bounds()
			return CompressedImage{
				Data:         encoded,
				ContentType:  ContentTypeJPEG,
				Width:        b.Dx(),
				Height:       b.Dy(),
				Quality:      state.quality,
				MaxDimension: state.maxDim,
				Attempts:     state.attempt,
			}, nil
		}
		smallest = min(smallest, len(encoded))
		if !state.next(c.opts) {
			break
		}
	}
	attempts := min(state.attempt, c.opts.MaxAttempts)
	return CompressedImage{}, &CompressionExhaustedError{
		TargetBytes:   targetBytes,
		SmallestBytes: smallest,
		Attempts:      attempts,
	}
}

func decode(raw RawImage) (image.Image, string, error) {
	if len(raw.Data) == 0 {
		return nil, "", &DecodeError{ContentType: raw.ContentType, Err: errors.New("empty payload")}
	}
	contentType := strings.ToLower(strings.TrimSpace(raw.ContentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(raw.Data)
	}
	reader := bytes.NewReader(raw.Data)
	var (
		img image.Image
		err error
	)
	switch contentType {
	case "image/jpeg", "image/jpg":
		contentType = ContentTypeJPEG
		img, err = jpeg.Decode(reader)
	case "image/png":
		img, err = png.Decode(reader)
	case "image/gif":
		img, err = gif.Decode(reader)
	case "image/webp":
		img, err = webp.Decode(reader)
	default:
		img, contentType, err = image.Decode(reader)
		if err == nil {
			contentType = "image/" + contentType
		}
	}
	if err != nil {
		return nil, "", &DecodeError{ContentType: contentType, Err: err}
	}
	return img, contentType, nil
}

// flatten draws img onto an opaque white canvas so transparency survives the
// JPEG re-encode.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// resize scales img so its long edge is at most maxDim, preserving aspect ratio.
func resize(img *image.RGBA, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := max(w, h)
	if maxDim <= 0 || long <= maxDim {
		return img
	}
	scale := float64(maxDim) / float64(long)
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func encodeJPEG(img image.Image, quality float64) ([]byte, error) {
	q := int(math.Round(quality * 100))
	q = min(100, max(1, q))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
