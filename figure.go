package trajplot

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	DefaultTimeColumn  = "time"
	DefaultWidth       = 8 * vg.Inch
	DefaultPanelHeight = 2.5 * vg.Inch
)

var (
	zeroLineColor = color.NRGBA{R: 128, G: 128, B: 128, A: 128}
	seriesColor   = color.NRGBA{R: 31, G: 119, B: 180, A: 255}
)

type FigureOptions struct {
	// Name of the column used as the x axis of every panel.
	TimeColumn string

	// Draw a horizontal reference line at y=0 under each series.
	IncludeZero bool

	Width       vg.Length
	PanelHeight vg.Length
}

// Panel is one subplot of the figure.
type Panel struct {
	Title    string
	XLabel   string
	ZeroLine bool
	Points   plotter.XYs
}

// Figure is a vertical stack of panels, one per data column after the first,
// in header order. Only the bottom panel is labelled with the time axis.
type Figure struct {
	Panels []Panel

	width       vg.Length
	panelHeight vg.Length
}

func NewFigure(table *Table, options FigureOptions) (*Figure, error) {
	timeColumnName := options.TimeColumn
	if timeColumnName == "" {
		timeColumnName = DefaultTimeColumn
	}

	timeColumn, ok := table.Column(timeColumnName)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q is not one of %v", ErrLoad, ErrNoTimeColumn, timeColumnName, table.ColumnNames())
	}

	// The first column is the time axis by convention and is never plotted
	// against itself, wherever the named time column actually sits.
	series := table.Columns[1:]
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: %w: header is %v", ErrLoad, ErrNoSeries, table.ColumnNames())
	}

	f := &Figure{
		Panels:      make([]Panel, 0, len(series)),
		width:       options.Width,
		panelHeight: options.PanelHeight,
	}
	if f.width <= 0 {
		f.width = DefaultWidth
	}
	if f.panelHeight <= 0 {
		f.panelHeight = DefaultPanelHeight
	}

	for i, column := range series {
		points := make(plotter.XYs, len(column.Values))
		for j, y := range column.Values {
			points[j].X = timeColumn.Values[j]
			points[j].Y = y
		}

		panel := Panel{
			Title:    column.Name,
			ZeroLine: options.IncludeZero,
			Points:   points,
		}
		if i == len(series)-1 {
			panel.XLabel = timeColumnName
		}

		f.Panels = append(f.Panels, panel)
	}

	return f, nil
}

func (f *Figure) Size() (vg.Length, vg.Length) {
	return f.width, f.panelHeight * vg.Length(len(f.Panels))
}

// Plots builds one gonum plot per panel.
func (f *Figure) Plots() ([]*plot.Plot, error) {
	plots := make([]*plot.Plot, 0, len(f.Panels))
	for _, panel := range f.Panels {
		p, err := panel.plot()
		if err != nil {
			return nil, fmt.Errorf("panel %q: %w", panel.Title, err)
		}
		plots = append(plots, p)
	}
	return plots, nil
}

func (panel Panel) plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = panel.Title
	p.X.Label.Text = panel.XLabel

	// The reference line goes in first so the data is drawn over it. It is a
	// real line rather than a function so y=0 is always inside the y range.
	if panel.ZeroLine {
		lo, hi, ok := Extent(xValues(panel.Points))
		if ok {
			zero, err := plotter.NewLine(plotter.XYs{{X: lo, Y: 0}, {X: hi, Y: 0}})
			if err != nil {
				return nil, err
			}
			zero.LineStyle.Color = zeroLineColor
			zero.LineStyle.Width = vg.Points(1)
			p.Add(zero)
		}
	}

	// NaN or infinite samples leave a gap between the runs on either side.
	for _, run := range finiteRuns(panel.Points) {
		line, err := plotter.NewLine(run)
		if err != nil {
			return nil, err
		}
		line.LineStyle.Color = seriesColor
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
	}

	return p, nil
}

// finiteRuns splits points into maximal runs where both coordinates are
// finite.
func finiteRuns(points plotter.XYs) []plotter.XYs {
	var runs []plotter.XYs
	start := -1
	for i, pt := range points {
		if isFinite(pt.X) && isFinite(pt.Y) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, points[start:i])
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, points[start:])
	}
	return runs
}

// WriteTo draws the whole figure onto a single canvas of the given format
// (png, svg, pdf, eps, jpg, tif or tex) and writes it to w.
func (f *Figure) WriteTo(w io.Writer, format string) error {
	plots, err := f.Plots()
	if err != nil {
		return err
	}

	width, height := f.Size()
	canvas, err := draw.NewFormattedCanvas(width, height, strings.ToLower(format))
	if err != nil {
		return err
	}

	rows := make([][]*plot.Plot, len(plots))
	for i, p := range plots {
		rows[i] = []*plot.Plot{p}
	}

	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      1,
		PadX:      vg.Millimeter,
		PadY:      2 * vg.Millimeter,
		PadTop:    vg.Millimeter,
		PadBottom: vg.Millimeter,
		PadLeft:   vg.Millimeter,
		PadRight:  2 * vg.Millimeter,
	}

	canvases := plot.Align(rows, tiles, draw.New(canvas))
	for i, p := range plots {
		p.Draw(canvases[i][0])
	}

	_, err = canvas.WriteTo(w)
	return err
}

// Save writes the figure to path, picking the format from the file extension.
func (f *Figure) Save(path string) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		return fmt.Errorf("cannot determine image format of %s, add an extension such as .png", path)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := f.WriteTo(out, format); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"tag":    "Figure",
		"path":   path,
		"panels": len(f.Panels),
	}).Info("saved figure")

	return out.Close()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func xValues(points plotter.XYs) []float64 {
	xs := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
	}
	return xs
}
