// Package render draws the city skyline as a raster image.
package render

import (
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/fogleman/gg"

	"citybuilder/internal/palette"
	"citybuilder/pkg/domain"
)

// Options controls the skyline layout. Zero fields take the defaults.
type Options struct {
	HouseWidth int
	Gap        int
	Margin     int
	Background string
	Ground     string
	Labels     bool
}

// DefaultOptions returns the layout used by the HTTP surface and the CLI.
func DefaultOptions() Options {
	return Options{
		HouseWidth: 120,
		Gap:        24,
		Margin:     32,
		Background: "#F2F7FF",
		Ground:     "#5B4636",
		Labels:     true,
	}
}

const (
	groundHeight = 12
	labelHeight  = 18
	outline      = "#333333"
)

// ErrInvalidOptions is returned for negative or zero-width layouts.
var ErrInvalidOptions = errors.New("render: invalid options")

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HouseWidth == 0 {
		o.HouseWidth = d.HouseWidth
	}
	if o.Gap == 0 {
		o.Gap = d.Gap
	}
	if o.Margin == 0 {
		o.Margin = d.Margin
	}
	if o.Background == "" {
		o.Background = d.Background
	}
	if o.Ground == "" {
		o.Ground = d.Ground
	}
	return o
}

// Size returns the image dimensions for the visible houses.
func Size(houses []domain.House, opts Options) (int, int) {
	opts = opts.withDefaults()
	visible := visibleHouses(houses)
	tallest := 0
	for _, h := range visible {
		if n := len(h.Floors); n > tallest {
			tallest = n
		}
	}
	if tallest == 0 {
		tallest = domain.MinFloors
	}
	n := len(visible)
	if n == 0 {
		n = 1
	}
	w := 2*opts.Margin + n*opts.HouseWidth + (n-1)*opts.Gap
	h := 2*opts.Margin + domain.DeriveHeight(tallest) + groundHeight
	if opts.Labels {
		h += labelHeight
	}
	return w, h
}

// Render draws houses left to right in collection order. Each house is a
// triangular roof over one FloorHeight band per floor, index 0 on top.
// Houses being removed are left out.
func Render(houses []domain.House, opts Options) (image.Image, error) {
	dc, err := draw(houses, opts)
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

// EncodePNG renders houses and writes the PNG encoding to w.
func EncodePNG(w io.Writer, houses []domain.House, opts Options) error {
	dc, err := draw(houses, opts)
	if err != nil {
		return err
	}
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func draw(houses []domain.House, opts Options) (*gg.Context, error) {
	if opts.HouseWidth < 0 || opts.Gap < 0 || opts.Margin < 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidOptions, opts)
	}
	opts = opts.withDefaults()
	width, height := Size(houses, opts)
	dc := gg.NewContext(width, height)

	dc.SetHexColor(opts.Background)
	dc.Clear()

	groundY := float64(height - opts.Margin - groundHeight)
	if opts.Labels {
		groundY -= labelHeight
	}
	dc.SetHexColor(opts.Ground)
	dc.DrawRectangle(0, groundY, float64(width), groundHeight)
	dc.Fill()

	x := float64(opts.Margin)
	for _, h := range visibleHouses(houses) {
		drawHouse(dc, h, x, groundY, float64(opts.HouseWidth))
		if opts.Labels {
			dc.SetHexColor(outline)
			dc.DrawStringAnchored(truncate(h.Name, opts.HouseWidth/7), x+float64(opts.HouseWidth)/2, groundY+groundHeight+labelHeight/2, 0.5, 0.5)
		}
		x += float64(opts.HouseWidth + opts.Gap)
	}
	return dc, nil
}

func drawHouse(dc *gg.Context, h domain.House, x, groundY, width float64) {
	base := palette.Resolve(h.Color)
	n := len(h.Floors)
	top := groundY - float64(n*domain.FloorHeight)

	for i, f := range h.Floors {
		y := top + float64(i*domain.FloorHeight)
		dc.DrawRectangle(x, y, width, domain.FloorHeight)
		dc.SetHexColor(FloorColor(f, base))
		dc.FillPreserve()
		dc.SetHexColor(outline)
		dc.SetLineWidth(1)
		dc.Stroke()
	}

	dc.MoveTo(x, top)
	dc.LineTo(x+width/2, top-domain.FloorHeight)
	dc.LineTo(x+width, top)
	dc.ClosePath()
	dc.SetHexColor(base)
	dc.FillPreserve()
	dc.SetHexColor(outline)
	dc.Stroke()
}

// FloorColor returns the hex color a floor is painted with: its own color
// when set, otherwise houseHex. Palette keys are accepted as floor colors.
func FloorColor(f domain.Floor, houseHex string) string {
	c := strings.TrimSpace(f.Color)
	switch {
	case c == "":
		return houseHex
	case strings.HasPrefix(c, "#"):
		return c
	default:
		if hex, ok := palette.Lookup(c); ok {
			return hex
		}
		return houseHex
	}
}

func visibleHouses(houses []domain.House) []domain.House {
	out := make([]domain.House, 0, len(houses))
	for _, h := range houses {
		if h.Status == domain.StatusRemoved {
			continue
		}
		out = append(out, h)
	}
	return out
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 1 || len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "~"
}
