// Package imageutils provides utilities for working with rendered
// environment frames.
package imageutils

import (
	"fmt"
	"image"
	"math"

	"github.com/fogleman/gg"
)

// Tile lays n equally-sized frames out on a near-square grid and
// returns them as one image. The grid has ceil(sqrt(n)) rows, so for
// square n the grid is square; frames fill the grid in row-major
// order and any unused cells are left blank.
func Tile(frames []image.Image) (image.Image, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("tile: no frames to tile")
	}

	bounds := frames[0].Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	for i, frame := range frames[1:] {
		if frame.Bounds().Dx() != w || frame.Bounds().Dy() != h {
			return nil, fmt.Errorf("tile: frame %v is %vx%v, expected "+
				"%vx%v", i+1, frame.Bounds().Dx(), frame.Bounds().Dy(), w, h)
		}
	}

	rows := int(math.Ceil(math.Sqrt(float64(len(frames)))))
	cols := int(math.Ceil(float64(len(frames)) / float64(rows)))

	dc := gg.NewContext(cols*w, rows*h)
	for i, frame := range frames {
		dc.DrawImage(frame, (i%cols)*w, (i/cols)*h)
	}

	return dc.Image(), nil
}
