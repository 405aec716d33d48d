package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/OCAP2/vehicledyn/internal/config"

	"github.com/spf13/pflag"
)

func vehiclesCommand(args []string) error {
	fs := pflag.NewFlagSet("vehicles", pflag.ContinueOnError)
	configDir := commonFlags(fs)
	if err := loadConfig(fs, configDir, args); err != nil {
		return err
	}

	catalog, err := config.LoadCatalog()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tMASS\tWHEELBASE\tMAX SPEED\tBACKEND\tGEARS")
	for _, kind := range catalog.Kinds() {
		v, err := catalog.Get(kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%.0f kg\t%.2f m\t%.1f m/s\t%s\t%d\n",
			kind, v.Params.Mass, v.Params.Wheelbase, v.Params.MaxSpeed,
			v.Params.Backend.Mode, len(v.Gearbox.Ratios))
	}
	return w.Flush()
}
