package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/sunshineplan/imgconv"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
)

var ErrUndecodableImage = errors.New("could not decode image")

// Decode turns uploaded or streamed bytes into an image.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUndecodableImage)
	}
	img, err := imgconv.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrUndecodableImage)
	}
	return img, nil
}

// EncodeJPEG is how frames and crops are handed to out-of-process collaborators.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	err := imgconv.Write(&buf, img, &imgconv.FormatOption{
		Format:       imgconv.JPEG,
		EncodeOption: []imgconv.EncodeOption{imgconv.Quality(95)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// PadBox grows b by padX of its width on each side and padY of its height on top and
// bottom, then clamps the result to a width x height image. Padding is truncated to whole
// pixels. The result may be empty.
func PadBox(b anpr.Box, padX, padY float64, width, height int) anpr.Box {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}

	padW := int(float64(b.Width()) * padX)
	padH := int(float64(b.Height()) * padY)

	return anpr.Box{
		X1: clamp(b.X1-padW, 0, width),
		Y1: clamp(b.Y1-padH, 0, height),
		X2: clamp(b.X2+padW, 0, width),
		Y2: clamp(b.Y2+padH, 0, height),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop extracts b (in image-relative coordinates) from img.
func Crop(img image.Image, b anpr.Box) image.Image {
	rect := image.Rect(b.X1, b.Y1, b.X2, b.Y2).Add(img.Bounds().Min).Intersect(img.Bounds())
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// Scale maps coordinates from a downscaled frame back to the original one.
type Scale struct {
	X, Y float64
}

var Identity = Scale{X: 1, Y: 1}

// Downscale shrinks img so its longer side is at most maxSide, keeping aspect ratio.
// A non-positive maxSide or an already small image is returned untouched.
func Downscale(img image.Image, maxSide int) (image.Image, Scale) {
	b := img.Bounds()
	if maxSide <= 0 || (b.Dx() <= maxSide && b.Dy() <= maxSide) {
		return img, Identity
	}

	small := resize.Thumbnail(uint(maxSide), uint(maxSide), img, resize.Bilinear)
	sb := small.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return img, Identity
	}
	return small, Scale{
		X: float64(b.Dx()) / float64(sb.Dx()),
		Y: float64(b.Dy()) / float64(sb.Dy()),
	}
}

func (s Scale) Apply(b anpr.Box) anpr.Box {
	if s == Identity {
		return b
	}
	return anpr.Box{
		X1: int(float64(b.X1) * s.X),
		Y1: int(float64(b.Y1) * s.Y),
		X2: int(float64(b.X2) * s.X),
		Y2: int(float64(b.Y2) * s.Y),
	}
}
