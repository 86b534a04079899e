package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/nfnt/resize"

	"apple_detector/internal/feature/detection/domain/entity"
)

// DefaultInputSize is the square input edge the classifier expects.
const DefaultInputSize = 224

// ErrDecode is returned when an image cannot be decoded into pixel data.
var ErrDecode = errors.New("image decode failed")

// Preprocessor decodes an image, resizes it to the model input size and
// scales RGB values to [0, 1] in an NHWC tensor with batch size 1.
type Preprocessor struct {
	width, height int
	interp        resize.InterpolationFunction
}

// NewPreprocessor returns a Preprocessor for size×size inputs.
// interpolation is one of nearest, bilinear, bicubic, lanczos3; empty means nearest.
func NewPreprocessor(size int, interpolation string) (*Preprocessor, error) {
	if size <= 0 {
		size = DefaultInputSize
	}
	interp, err := ParseInterpolation(interpolation)
	if err != nil {
		return nil, err
	}
	return &Preprocessor{width: size, height: size, interp: interp}, nil
}

// InputShape returns the tensor shape produced by Preprocess.
func (p *Preprocessor) InputShape() []int {
	return []int{1, p.height, p.width, 3}
}

// Preprocess reads path and returns a [1, H, W, 3] tensor.
func (p *Preprocessor) Preprocess(ctx context.Context, path string) (entity.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return entity.Tensor{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return entity.Tensor{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return entity.Tensor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return p.FromImage(img)
}

// FromImage converts a decoded image into the model tensor.
func (p *Preprocessor) FromImage(img image.Image) (entity.Tensor, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return entity.Tensor{}, fmt.Errorf("%w: empty image", ErrDecode)
	}

	resized := img
	if b.Dx() != p.width || b.Dy() != p.height {
		resized = resize.Resize(uint(p.width), uint(p.height), img, p.interp)
	}

	t := entity.NewTensor(p.InputShape()...)
	rb := resized.Bounds()
	i := 0
	for y := rb.Min.Y; y < rb.Min.Y+p.height; y++ {
		for x := rb.Min.X; x < rb.Min.X+p.width; x++ {
			r, g, bl, _ := resized.At(x, y).RGBA()
			t.Data[i] = float32(r>>8) / 255.0
			t.Data[i+1] = float32(g>>8) / 255.0
			t.Data[i+2] = float32(bl>>8) / 255.0
			i += 3
		}
	}
	return t, nil
}

// ParseInterpolation maps a config name to a resize interpolation function.
func ParseInterpolation(name string) (resize.InterpolationFunction, error) {
	switch strings.ToLower(name) {
	case "", "nearest":
		return resize.NearestNeighbor, nil
	case "bilinear":
		return resize.Bilinear, nil
	case "bicubic":
		return resize.Bicubic, nil
	case "lanczos3":
		return resize.Lanczos3, nil
	default:
		return 0, fmt.Errorf("unknown interpolation %q", name)
	}
}
