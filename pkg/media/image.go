package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"

	xdraw "golang.org/x/image/draw"
)

// jpegQuality is used for all saved frame artifacts.
const jpegQuality = 85

// ToImage expands a raw RGB24 frame into a freshly allocated RGBA image.
func (f *VideoFrame) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.RGB[y*f.Width*3:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			dst[x*4+0] = src[x*3+0]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img
}

// EncodeJPEG encodes an image to JPEG bytes.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteJPEG encodes a frame and writes it to path.
func WriteJPEG(path string, img image.Image) error {
	data, err := EncodeJPEG(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadJPEG decodes a JPEG file.
func ReadJPEG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Resize scales an image to width x height with approximate bilinear
// filtering.
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// Grayscale converts an image to 8-bit luma using the BT.601 weights.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(b)
	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[(y-b.Min.Y)*rgba.Stride:]
			out := dst.Pix[(y-b.Min.Y)*dst.Stride:]
			for x := 0; x < b.Dx(); x++ {
				r := uint32(row[x*4+0])
				g := uint32(row[x*4+1])
				bl := uint32(row[x*4+2])
				out[x] = uint8((299*r + 587*g + 114*bl) / 1000)
			}
		}
		return dst
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			dst.SetGray(x, y, color.Gray{Y: uint8((299*(r>>8) + 587*(g>>8) + 114*(bl>>8)) / 1000)})
		}
	}
	return dst
}
