// Package gui runs the screen verification loop for on-screen targets:
// capture, infer, approach, re-verify, act, confirm. Every step checks
// for cancellation and is traced and evented, so an operator can replay
// exactly why a click did or did not happen.
package gui

import (
	"bytes"
	stderrors "errors"
	"image"
	"image/draw"
	"image/png"
	"math"

	"github.com/zeebo/blake3"
)

var errEmptyCrop = stderrors.New("crop region outside frame")

// gridCells is the edge length of the coarse luminance grid. 64 cells
// is enough to localize change to a screen region without being
// sensitive to cursor blinks.
const gridCells = 8

// materialCellDelta is the per-cell luminance change treated as real,
// filtering antialiasing and compression noise.
const materialCellDelta = 0.08

// Fingerprint summarizes one capture: an exact digest plus a coarse
// luminance grid for region-level comparison.
type Fingerprint struct {
	Digest [32]byte
	Grid   [gridCells * gridCells]float64
	Bounds image.Rectangle
}

// ComputeFingerprint builds the fingerprint for a decoded frame. raw is
// the encoded capture, used only for the digest.
func ComputeFingerprint(raw []byte, img image.Image) *Fingerprint {
	fp := &Fingerprint{
		Digest: blake3.Sum256(raw),
		Bounds: img.Bounds(),
	}

	b := img.Bounds()
	for cy := 0; cy < gridCells; cy++ {
		y0 := b.Min.Y + cy*b.Dy()/gridCells
		y1 := b.Min.Y + (cy+1)*b.Dy()/gridCells
		for cx := 0; cx < gridCells; cx++ {
			x0 := b.Min.X + cx*b.Dx()/gridCells
			x1 := b.Min.X + (cx+1)*b.Dx()/gridCells

			var sum float64
			var n int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
					n++
				}
			}
			if n > 0 {
				fp.Grid[cy*gridCells+cx] = sum / float64(n) / 0xffff
			}
		}
	}
	return fp
}

// Same reports whether two captures are byte-identical.
func (f *Fingerprint) Same(other *Fingerprint) bool {
	return f.Digest == other.Digest
}

// Diff returns the fraction of grid cells whose luminance changed
// materially, 0 to 1.
func (f *Fingerprint) Diff(other *Fingerprint) float64 {
	changed := 0
	for i := range f.Grid {
		if math.Abs(f.Grid[i]-other.Grid[i]) > materialCellDelta {
			changed++
		}
	}
	return float64(changed) / float64(len(f.Grid))
}

// DiffRegion returns the fraction of materially changed cells among
// those overlapping region. Mismatched frame geometry counts as full
// change.
func (f *Fingerprint) DiffRegion(other *Fingerprint, region image.Rectangle) float64 {
	if f.Bounds != other.Bounds {
		return 1
	}

	b := f.Bounds
	total, changed := 0, 0
	for cy := 0; cy < gridCells; cy++ {
		y0 := b.Min.Y + cy*b.Dy()/gridCells
		y1 := b.Min.Y + (cy+1)*b.Dy()/gridCells
		for cx := 0; cx < gridCells; cx++ {
			x0 := b.Min.X + cx*b.Dx()/gridCells
			x1 := b.Min.X + (cx+1)*b.Dx()/gridCells

			cell := image.Rect(x0, y0, x1, y1)
			if !cell.Overlaps(region) {
				continue
			}
			total++
			i := cy*gridCells + cx
			if math.Abs(f.Grid[i]-other.Grid[i]) > materialCellDelta {
				changed++
			}
		}
	}
	if total == 0 {
		return f.Diff(other)
	}
	return float64(changed) / float64(total)
}

// frame pairs a capture with its decoded image and fingerprint.
type frame struct {
	raw []byte
	img image.Image
	fp  *Fingerprint
}

func newFrame(raw []byte) (*frame, error) {
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return &frame{raw: raw, img: img, fp: ComputeFingerprint(raw, img)}, nil
}

// cropPNG re-encodes the part of img covered by region and returns the
// crop plus its origin in frame coordinates, for translating model
// answers back.
func cropPNG(img image.Image, region image.Rectangle) ([]byte, image.Point, error) {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return nil, image.Point{}, errEmptyCrop
	}

	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	var cropped image.Image
	if si, ok := img.(subImager); ok {
		cropped = si.SubImage(region)
	} else {
		dst := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
		draw.Draw(dst, dst.Bounds(), img, region.Min, draw.Src)
		cropped = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, image.Point{}, err
	}
	return buf.Bytes(), region.Min, nil
}
