package rules

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wudi/preflight/colorspace"
	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/contentstream"
	"github.com/wudi/preflight/coords"
	"github.com/wudi/preflight/ir/semantic"
	"github.com/wudi/preflight/raster"
)

func imageOf(obj *contentstream.DrawnObject) *semantic.Image {
	if obj.Kind != contentstream.KindImage || obj.XObject == nil {
		return nil
	}
	return obj.XObject.Image
}

// ColorSpaceImages checks the color space of every drawn image. Stencil
// masks have none and are skipped.
type ColorSpaceImages struct {
	ColorSpaces
}

func NewColorSpaceImages(allowed, disallowed []string) *ColorSpaceImages {
	return &ColorSpaceImages{ColorSpaces{Allowed: allowed, Disallowed: disallowed}}
}

func (r *ColorSpaceImages) ID() string { return "ColorSpaceImages" }

func (r *ColorSpaceImages) CheckObject(ctx compliance.Context, run *compliance.Run, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
	img := imageOf(obj)
	if img == nil || img.ImageMask || img.ColorSpace == nil {
		return nil, nil
	}
	family, err := run.ColorSpaces.Resolve(img.ColorSpace)
	if err != nil {
		return []compliance.Violation{compliance.NewPageViolation(r.ID(),
			fmt.Sprintf("Invalid image ColorSpace found : %s.", unresolved), obj.Page,
			compliance.KV("image", obj.Name), compliance.KV("colorSpace", unresolved), compliance.KV("error", err.Error()))}, nil
	}
	if r.Valid(family) {
		return nil, nil
	}
	return []compliance.Violation{compliance.NewPageViolation(r.ID(),
		fmt.Sprintf("Invalid image ColorSpace found : %s.", family), obj.Page,
		compliance.KV("image", obj.Name), compliance.KV("colorSpace", family))}, nil
}

// ImageMinDpi requires an effective resolution of at least Min on both axes.
type ImageMinDpi struct {
	Min int
}

func NewImageMinDpi(min int) *ImageMinDpi { return &ImageMinDpi{Min: min} }

func (r *ImageMinDpi) ID() string { return "ImageMinDpi" }

func (r *ImageMinDpi) CheckObject(ctx compliance.Context, run *compliance.Run, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
	img := imageOf(obj)
	if img == nil {
		return nil, nil
	}
	dpiX, dpiY, ok := EffectiveDpi(img.Width, img.Height, obj.State.CTM)
	if !ok || dpiX >= r.Min && dpiY >= r.Min {
		return nil, nil
	}
	return []compliance.Violation{compliance.NewPageViolation(r.ID(),
		fmt.Sprintf("Image with low DPI (X: %d, Y: %d)", dpiX, dpiY), obj.Page,
		compliance.KV("image", obj.Name), compliance.KV("dpiX", dpiX), compliance.KV("dpiY", dpiY))}, nil
}

// EffectiveDpi returns ceil(|pixels·72/scale|) per axis. ok is false when
// the CTM collapses an axis.
func EffectiveDpi(width, height int, ctm coords.Matrix) (x, y int, ok bool) {
	sx, sy := ctm.ScaleX(), ctm.ScaleY()
	if sx == 0 || sy == 0 {
		return 0, 0, false
	}
	x = int(math.Ceil(math.Abs(float64(width) * 72 / sx)))
	y = int(math.Ceil(math.Abs(float64(height) * 72 / sy)))
	return x, y, true
}

// MaxInkDensityImage caps the total ink coverage of DeviceCMYK images.
type MaxInkDensityImage struct {
	Max int
}

func NewMaxInkDensityImage(max int) *MaxInkDensityImage { return &MaxInkDensityImage{Max: max} }

func (r *MaxInkDensityImage) ID() string { return "MaxInkDensityImage" }

type reportKey struct {
	rule  string
	image *semantic.XObject
	page  int
}

func (r *MaxInkDensityImage) CheckObject(ctx compliance.Context, run *compliance.Run, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
	img := imageOf(obj)
	if img == nil || img.ImageMask || img.ColorSpace == nil {
		return nil, nil
	}
	if family, err := run.ColorSpaces.Resolve(img.ColorSpace); err != nil || family != colorspace.DeviceCMYK {
		return nil, nil
	}
	density, err := run.Densities.Density(obj.XObject, func() (float64, error) {
		buf, err := run.Images.Decode(ctx, img, img.ColorKeyMask)
		if err != nil {
			return 0, err
		}
		return raster.Density(buf), nil
	})
	key := reportKey{rule: r.ID(), image: obj.XObject, page: obj.Page}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if !run.Once(key) {
			return nil, nil
		}
		return []compliance.Violation{compliance.DecodeViolation(r.ID(), obj.Page, obj.Name, err)}, nil
	}
	if density <= float64(r.Max) || !run.Once(key) {
		return nil, nil
	}
	return []compliance.Violation{compliance.NewPageViolation(r.ID(),
		fmt.Sprintf("Image color density exceeds maximum of %d.", r.Max), obj.Page,
		compliance.KV("density", density), compliance.KV("image", obj.Name))}, nil
}

// NoFormsInsidePageArea rejects forms whose page-space bounding box
// overlaps the TrimBox or BleedBox.
type NoFormsInsidePageArea struct{}

func (NoFormsInsidePageArea) ID() string { return "NoFormsInsidePageArea" }

func (r NoFormsInsidePageArea) CheckObject(ctx compliance.Context, run *compliance.Run, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
	if obj.Kind != contentstream.KindForm && obj.Kind != contentstream.KindTransparencyGroup {
		return nil, nil
	}
	page := run.Page(obj.Page)
	if page == nil || obj.XObject == nil || obj.XObject.Form == nil {
		return nil, nil
	}
	form := obj.XObject.Form
	bounds := transformRect(form.BBox, form.Matrix.Multiply(obj.State.CTM))
	if !overlaps(page.TrimBox, bounds) && !overlaps(page.BleedBox, bounds) {
		return nil, nil
	}
	return []compliance.Violation{compliance.NewPageViolation(r.ID(),
		"Form elements must be outside of TrimBox and BleedBox.", obj.Page,
		compliance.KV("form", obj.Name), compliance.KV("rectangle", bounds),
		compliance.KV("bleedBox", page.BleedBox), compliance.KV("trimBox", page.TrimBox))}, nil
}

// transformRect returns the axis-aligned bounds of r under m.
func transformRect(r semantic.Rectangle, m coords.Matrix) semantic.Rectangle {
	corners := [4]coords.Point{
		m.Transform(coords.Point{X: r.LLX, Y: r.LLY}),
		m.Transform(coords.Point{X: r.URX, Y: r.LLY}),
		m.Transform(coords.Point{X: r.URX, Y: r.URY}),
		m.Transform(coords.Point{X: r.LLX, Y: r.URY}),
	}
	out := semantic.Rectangle{LLX: corners[0].X, LLY: corners[0].Y, URX: corners[0].X, URY: corners[0].Y}
	for _, c := range corners[1:] {
		out.LLX = math.Min(out.LLX, c.X)
		out.LLY = math.Min(out.LLY, c.Y)
		out.URX = math.Max(out.URX, c.X)
		out.URY = math.Max(out.URY, c.Y)
	}
	return out
}

// overlaps reports whether a and b share an area.
func overlaps(a, b semantic.Rectangle) bool {
	return a.LLX < b.URX && b.LLX < a.URX && a.LLY < b.URY && b.LLY < a.URY
}
