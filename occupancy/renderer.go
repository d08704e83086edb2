package occupancy

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PlotRenderer renders a room's scored timeline as a day-profile chart:
// the CO2 curve over time with in-use slots shaded and night hours banded.
// Both SVG and PNG output share the same vector drawing; the PNG path adds
// raster text labels on top.
type PlotRenderer struct {
	Night NightConfig

	WidthMM  float64
	HeightMM float64
	Margin   float64 // margin in mm around the plot area

	Resolution canvas.Resolution
}

// NewPlotRenderer creates a renderer with the configured canvas size.
func NewPlotRenderer(cfg PlotConfig, night NightConfig) *PlotRenderer {
	width, height, dpi := cfg.WidthMM, cfg.HeightMM, cfg.DPI
	if width <= 0 {
		width = 240
	}
	if height <= 0 {
		height = 80
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &PlotRenderer{
		Night:      night,
		WidthMM:    width,
		HeightMM:   height,
		Margin:     8,
		Resolution: canvas.DPI(dpi),
	}
}

// canvasRenderer is the surface both svg and rasterizer renderers expose.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderSVG writes the room plot as an SVG to the provided writer.
func (r *PlotRenderer) RenderSVG(w io.Writer, room string, t ScoredTable) error {
	if t.Empty() {
		return fmt.Errorf("no rows to plot for %s", room)
	}
	t.SortByTime()

	svgRenderer := svg.New(w, r.WidthMM, r.HeightMM, nil)
	r.renderToCanvas(svgRenderer, t)
	if err := svgRenderer.Close(); err != nil {
		return fmt.Errorf("closing SVG renderer: %w", err)
	}
	return nil
}

// RenderPNG writes the room plot as a PNG to the provided writer, with the
// room key and CO2 range drawn as raster labels.
func (r *PlotRenderer) RenderPNG(w io.Writer, room string, t ScoredTable) error {
	if t.Empty() {
		return fmt.Errorf("no rows to plot for %s", room)
	}
	t.SortByTime()

	rast := rasterizer.New(r.WidthMM, r.HeightMM, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, t)

	_, maxCO2 := r.co2Range(t)
	label := fmt.Sprintf("%s  (%d slots, peak CO2 %.0f)", room, len(t.Rows), maxCO2)
	drawLabel(rast, label, 6, 14)

	return png.Encode(w, rast)
}

func (r *PlotRenderer) renderToCanvas(renderer canvasRenderer, t ScoredTable) {
	// White background.
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(r.WidthMM, r.HeightMM), bgStyle, canvas.Identity)

	plotW := r.WidthMM - 2*r.Margin
	plotH := r.HeightMM - 2*r.Margin
	minCO2, maxCO2 := r.co2Range(t)
	span := maxCO2 - minCO2
	if span <= 0 {
		span = 1
	}

	n := len(t.Rows)
	toX := func(i int) float64 {
		if n == 1 {
			return r.Margin
		}
		return r.Margin + plotW*float64(i)/float64(n-1)
	}
	toY := func(co2 float64) float64 {
		return r.Margin + plotH*(co2-minCO2)/span
	}
	slotW := plotW / math.Max(float64(n-1), 1)

	// Night bands behind everything else.
	nightStyle := canvas.DefaultStyle
	nightStyle.Fill = canvas.Paint{Color: color.RGBA{R: 225, G: 225, B: 235, A: 255}}
	nightStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, run := range r.runsWhere(t, func(s ScoredSlot) bool {
		return r.Night.Contains(s.Timestamp.Hour())
	}) {
		band := canvas.Rectangle(toX(run[1])-toX(run[0])+slotW, plotH)
		band = band.Translate(toX(run[0])-slotW/2, r.Margin)
		renderer.RenderPath(band, nightStyle, canvas.Identity)
	}

	// In-use spans.
	useStyle := canvas.DefaultStyle
	useStyle.Fill = canvas.Paint{Color: color.RGBA{R: 130, G: 200, B: 130, A: 255}}
	useStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, run := range r.runsWhere(t, func(s ScoredSlot) bool {
		return s.InUse != nil && *s.InUse == 1
	}) {
		band := canvas.Rectangle(toX(run[1])-toX(run[0])+slotW, plotH)
		band = band.Translate(toX(run[0])-slotW/2, r.Margin)
		renderer.RenderPath(band, useStyle, canvas.Identity)
	}

	// Hour grid lines.
	gridStyle := canvas.DefaultStyle
	gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	gridStyle.StrokeWidth = 0.15
	gridStyle.Dashes = []float64{1.0, 1.0}
	for i := 1; i < n; i++ {
		if t.Rows[i].Timestamp.Minute() != 0 || t.Rows[i].Timestamp.Hour()%6 != 0 {
			continue
		}
		gridPath := &canvas.Path{}
		gridPath.MoveTo(toX(i), r.Margin)
		gridPath.LineTo(toX(i), r.Margin+plotH)
		renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
	}

	// CO2 polyline.
	lineStyle := canvas.DefaultStyle
	lineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	lineStyle.Stroke = canvas.Paint{Color: color.RGBA{R: 40, G: 70, B: 160, A: 255}}
	lineStyle.StrokeWidth = 0.5
	linePath := &canvas.Path{}
	for i, row := range t.Rows {
		if i == 0 {
			linePath.MoveTo(toX(i), toY(row.CO2))
		} else {
			linePath.LineTo(toX(i), toY(row.CO2))
		}
	}
	renderer.RenderPath(linePath, lineStyle, canvas.Identity)

	// Plot frame.
	frameStyle := canvas.DefaultStyle
	frameStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	frameStyle.Stroke = canvas.Paint{Color: canvas.Black}
	frameStyle.StrokeWidth = 0.3
	frame := canvas.Rectangle(plotW, plotH)
	frame = frame.Translate(r.Margin, r.Margin)
	renderer.RenderPath(frame, frameStyle, canvas.Identity)
}

func (r *PlotRenderer) co2Range(t ScoredTable) (float64, float64) {
	minCO2, maxCO2 := t.Rows[0].CO2, t.Rows[0].CO2
	for _, row := range t.Rows[1:] {
		if row.CO2 < minCO2 {
			minCO2 = row.CO2
		}
		if row.CO2 > maxCO2 {
			maxCO2 = row.CO2
		}
	}
	return minCO2, maxCO2
}

// runsWhere returns [first, last] index pairs of maximal runs of rows
// matching the predicate.
func (r *PlotRenderer) runsWhere(t ScoredTable, match func(ScoredSlot) bool) [][2]int {
	var runs [][2]int
	start := -1
	for i, row := range t.Rows {
		if match(row) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, [2]int{start, i - 1})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, len(t.Rows) - 1})
	}
	return runs
}

// drawLabel draws raster text at pixel coordinates using the basic 7x13
// face. Only used on the PNG path; the SVG stays pure vector.
func drawLabel(dst *rasterizer.Rasterizer, text string, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
