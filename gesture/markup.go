package gesture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"
)

const bannerHeight = 22

var bannerColor = color.RGBA{0, 0, 0, 180}
var textColor = color.RGBA{255, 0, 0, 255}

// Markup returns a copy of frame with the classification drawn in a banner
// across the top.
func Markup(frame image.Image, c Classification) image.Image {
	b := frame.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, frame, b.Min, draw.Src)

	banner := image.Rect(b.Min.X, b.Min.Y, b.Max.X, min(b.Min.Y+bannerHeight, b.Max.Y))
	draw.Draw(out, banner, image.NewUniform(bannerColor), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(textColor),
		Face: inconsolata.Bold8x16,
		Dot:  fixed.Point26_6{X: fixed.I(b.Min.X + 4), Y: fixed.I(b.Min.Y + 16)},
	}
	d.DrawString(fmt.Sprintf("%s - %.03f", c.Label, c.Confidence))
	return out
}

// MarkupJPEG decodes a JPEG frame, marks it up and re-encodes it.
func MarkupJPEG(frame []byte, c Classification) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, Markup(img, c), nil); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}
