// Package report renders PNG charts of a recorded session.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/OCAP2/vehicledyn/internal/storage/memory"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// ErrNoSamples is returned for an export without any samples.
var ErrNoSamples = errors.New("export has no samples")

// Options sizes the rendered images.
type Options struct {
	Width  vg.Length
	Height vg.Length
	DPI    int
}

// DefaultOptions is 8x5 inches at 150 DPI.
func DefaultOptions() Options {
	return Options{Width: 8 * vg.Inch, Height: 5 * vg.Inch, DPI: 150}
}

type series struct {
	name string
	xys  plotter.XYs
}

type chart struct {
	file   string
	title  string
	xLabel string
	yLabel string
	series func(car memory.CarExport) []series
}

func timeSeries(name string, samples []core.Sample, value func(core.Sample) float64) series {
	xys := make(plotter.XYs, len(samples))
	for i, s := range samples {
		xys[i].X = s.SimTime.Seconds()
		xys[i].Y = value(s)
	}
	return series{name: name, xys: xys}
}

var charts = []chart{
	{
		file: "speed.png", title: "Speed", xLabel: "time (s)", yLabel: "speed (m/s)",
		series: func(c memory.CarExport) []series {
			return []series{timeSeries(c.Info.Name, c.Samples, func(s core.Sample) float64 { return s.Diag.Speed })}
		},
	},
	{
		file: "skid.png", title: "Skid", xLabel: "time (s)", yLabel: "skid",
		series: func(c memory.CarExport) []series {
			return []series{timeSeries(c.Info.Name, c.Samples, func(s core.Sample) float64 { return s.Diag.Skid })}
		},
	},
	{
		file: "slip.png", title: "Slip angles", xLabel: "time (s)", yLabel: "slip angle (deg)",
		series: func(c memory.CarExport) []series {
			return []series{
				timeSeries(c.Info.Name+" front", c.Samples, func(s core.Sample) float64 { return degrees(s.Diag.Front.SlipAngle) }),
				timeSeries(c.Info.Name+" rear", c.Samples, func(s core.Sample) float64 { return degrees(s.Diag.Rear.SlipAngle) }),
			}
		},
	},
	{
		file: "trajectory.png", title: "Trajectory", xLabel: "x (m)", yLabel: "y (m)",
		series: func(c memory.CarExport) []series {
			xys := make(plotter.XYs, len(c.Samples))
			for i, s := range c.Samples {
				xys[i].X = s.Position.X()
				xys[i].Y = s.Position.Y()
			}
			return []series{{name: c.Info.Name, xys: xys}}
		},
	},
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Charts lists the file names Render writes.
func Charts() []string {
	names := make([]string, len(charts))
	for i, c := range charts {
		names[i] = c.file
	}
	return names
}

// Render writes every chart of the export to outDir and returns the written
// paths.
func Render(export memory.Export, outDir string, opts Options) ([]string, error) {
	samples := 0
	for _, c := range export.Cars {
		samples += len(c.Samples)
	}
	if samples == 0 {
		return nil, ErrNoSamples
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.DPI <= 0 {
		opts = DefaultOptions()
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create directory: %w", err)
	}

	paths := make([]string, 0, len(charts))
	for _, ch := range charts {
		p, err := build(export, ch)
		if err != nil {
			return paths, fmt.Errorf("%s: %w", ch.file, err)
		}
		path := filepath.Join(outDir, ch.file)
		if err := savePNG(p, opts, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func build(export memory.Export, ch chart) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: %s", ch.title, export.Session.Name)
	p.X.Label.Text = ch.xLabel
	p.Y.Label.Text = ch.yLabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	i := 0
	for _, car := range export.Cars {
		if len(car.Samples) == 0 {
			continue
		}
		for _, s := range ch.series(car) {
			line, err := plotter.NewLine(s.xys)
			if err != nil {
				return nil, err
			}
			line.LineStyle.Width = vg.Points(1.5)
			line.LineStyle.Color = plotutil.Color(i)
			line.LineStyle.Dashes = plotutil.Dashes(i / len(plotutil.DefaultColors))
			p.Add(line)
			p.Legend.Add(s.name, line)
			i++
		}
	}
	return p, nil
}

func savePNG(p *plot.Plot, opts Options, path string) error {
	c := vgimg.NewWith(
		vgimg.UseWH(opts.Width, opts.Height),
		vgimg.UseDPI(opts.DPI),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	pngc := vgimg.PngCanvas{Canvas: c}
	if _, err := pngc.WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}
