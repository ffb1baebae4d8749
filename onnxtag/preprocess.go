package onnxtag

import (
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/stevecastle/wallkit/errs"
)

// InputSize is the square side the model takes.
const InputSize = 448

// MinMean is the lowest acceptable mean pixel value. Anything darker is
// treated as a failed decode. This is a heuristic, not a correctness rule:
// a genuinely near-black image is rejected too.
const MinMean = 5.0

// DecodeImage decodes the image at path. Animated GIFs yield their first
// frame.
func DecodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("onnxtag.DecodeImage", path)
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errs.Malformed("onnxtag.DecodeImage", path, err)
	}
	return img, nil
}

// Letterbox scales img to fit a size x size square without cropping, centred
// on a white background. Transparent areas show the background.
func Letterbox(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return dst
	}
	tw, th := size, size
	if w >= h {
		th = max(1, (h*size+w/2)/w)
	} else {
		tw = max(1, (w*size+h/2)/h)
	}
	x0 := (size - tw) / 2
	y0 := (size - th) / 2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+tw, y0+th), img, b, draw.Over, nil)
	return dst
}

// Tensor converts a square RGBA image into the NHWC float32 layout the model
// was trained on: channels in BGR order, values left at 0..255.
func Tensor(img *image.RGBA) []float32 {
	b := img.Bounds()
	data := make([]float32, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			r, g, bl := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
			data = append(data, float32(bl), float32(g), float32(r))
		}
	}
	return data
}

// Mean returns the mean of all values.
func Mean(data []float32) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += float64(v)
	}
	return sum / float64(len(data))
}

// Preprocess decodes the image at path and returns the model input tensor
// data.
func Preprocess(path string) ([]float32, error) {
	img, err := DecodeImage(path)
	if err != nil {
		return nil, err
	}
	data := Tensor(Letterbox(img, InputSize))
	if m := Mean(data); m < MinMean {
		return nil, errs.Malformed("onnxtag.Preprocess", path, errors.Errorf("image appears black or invalid (mean=%.1f)", m))
	}
	return data, nil
}
