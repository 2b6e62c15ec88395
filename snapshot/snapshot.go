// Package snapshot writes sampled frames and their annotated copies to the
// dated input/output directories.
package snapshot

import (
	"image"
	"image/color"
	"path/filepath"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/images"
	"github.com/nvr-ai/go-alarm/region"
	"github.com/nvr-ai/go-alarm/util"
)

var (
	regionColor = color.RGBA{G: 255, A: 255}
	boxColor    = color.RGBA{R: 255, G: 191, A: 255}
	alertColor  = color.RGBA{R: 255, A: 255}
)

// Annotation is a box drawn on the output frame.
type Annotation struct {
	Box     images.Rect
	Caption string
	// Alert draws the box in the alarm color.
	Alert bool
}

// Writer saves frames under a data root.
type Writer struct {
	root string
}

// NewWriter creates a writer rooted at root.
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Save writes the raw frame to the input directory and an annotated copy to
// the output directory of the frame's day.
//
// Arguments:
//   - algorithmID: Prefix of the file name.
//   - frame: The sampled frame.
//   - regions: Regions of interest, shaded on the output.
//   - annotations: Boxes and captions drawn on the output.
//
// Returns:
//   - string: The input path.
//   - string: The output path.
//   - error: When a directory cannot be created or a file cannot be written.
func (w *Writer) Save(algorithmID int64, frame detector.Frame, regions region.Set, annotations []Annotation) (string, string, error) {
	if frame.Image == nil {
		return "", "", errors.New("frame has no image")
	}
	inDir, err := util.DatedDir(w.root, util.KindInput, frame.Timestamp)
	if err != nil {
		return "", "", err
	}
	outDir, err := util.DatedDir(w.root, util.KindOutput, frame.Timestamp)
	if err != nil {
		return "", "", err
	}
	name := util.FrameName(algorithmID, frame.Timestamp)
	inPath, outPath := filepath.Join(inDir, name), filepath.Join(outDir, name)

	// ImageToMatRGB yields the BGR layout IMWrite expects.
	mat, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return "", "", errors.Wrap(err, "convert frame")
	}
	defer mat.Close()

	if !gocv.IMWrite(inPath, mat) {
		return "", "", errors.Errorf("write %s", inPath)
	}

	Draw(&mat, regions, annotations)
	if !gocv.IMWrite(outPath, mat) {
		return "", "", errors.Errorf("write %s", outPath)
	}
	return inPath, outPath, nil
}

// Draw shades regions and draws annotations on mat in place.
func Draw(mat *gocv.Mat, regions region.Set, annotations []Annotation) {
	if len(regions) > 0 {
		overlay := mat.Clone()
		defer overlay.Close()
		for _, r := range regions {
			gocv.Rectangle(&overlay, toRectangle(r), regionColor, -1)
		}
		gocv.AddWeighted(overlay, 0.3, *mat, 0.7, 0, mat)
	}

	for _, a := range annotations {
		c := boxColor
		if a.Alert {
			c = alertColor
		}
		gocv.Rectangle(mat, toRectangle(a.Box), c, 2)
		if a.Caption != "" {
			origin := image.Pt(a.Box.X1, max(a.Box.Y1-6, 12))
			gocv.PutText(mat, a.Caption, origin, gocv.FontHersheySimplex, 0.6, c, 2)
		}
	}
}

// toRectangle converts inclusive corners to a half-open image.Rectangle.
func toRectangle(r images.Rect) image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2+1, r.Y2+1)
}
