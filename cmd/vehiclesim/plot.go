package main

import (
	"fmt"
	"path/filepath"

	"github.com/OCAP2/vehicledyn/internal/report"
	"github.com/OCAP2/vehicledyn/internal/storage/memory"

	"github.com/spf13/pflag"
	"gonum.org/v1/plot/vg"
)

func plotCommand(args []string) error {
	fs := pflag.NewFlagSet("plot", pflag.ContinueOnError)
	configDir := commonFlags(fs)
	out := fs.StringP("out", "o", "charts", "output directory")
	width := fs.Float64("width", 8, "image width in inches")
	height := fs.Float64("height", 5, "image height in inches")
	dpi := fs.Int("dpi", 150, "image resolution")
	fs.Usage = func() {
		fmt.Println("usage: vehiclesim plot [flags] <export.json[.gz]>...")
		fs.PrintDefaults()
	}

	if err := loadConfig(fs, configDir, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("no export file given")
	}

	opts := report.Options{
		Width:  vg.Length(*width) * vg.Inch,
		Height: vg.Length(*height) * vg.Inch,
		DPI:    *dpi,
	}
	for _, path := range fs.Args() {
		export, err := memory.ReadExport(path)
		if err != nil {
			return err
		}
		dir := *out
		if fs.NArg() > 1 {
			dir = filepath.Join(*out, export.Session.ID.String())
		}
		paths, err := report.Render(*export, dir, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		Logger.Info("Rendered charts", "export", path, "charts", len(paths))
		for _, p := range paths {
			fmt.Println(p)
		}
	}
	return nil
}
