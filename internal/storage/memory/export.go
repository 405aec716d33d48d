package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/OCAP2/vehicledyn/internal/geo"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
)

// FormatVersion is written into every export.
const FormatVersion = 1

// Export is the root JSON structure of a recorded session
type Export struct {
	FormatVersion int             `json:"formatVersion"`
	Session       core.Session    `json:"session"`
	EndTick       uint64          `json:"endTick"`
	Duration      float64         `json:"duration"` // seconds
	Cars          []CarExport     `json:"cars"`
	Events        []core.CarEvent `json:"events"` // events of cars that were never added
}

// CarExport is one car with its samples. Trajectory is WKT in EPSG:3857
// when the session is geo-referenced and in local metres otherwise.
type CarExport struct {
	Info       core.CarInfo    `json:"info"`
	Trajectory string          `json:"trajectory,omitempty"`
	Samples    []core.Sample   `json:"samples"`
	Events     []core.CarEvent `json:"events"`
}

// exportJSON writes the session to OutputDir, gzipped when CompressOutput is set
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	name := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(b.session.Name)
	if name == "" {
		name = "session"
	}
	timestamp := b.session.StartTime.Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s.json", name, timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)
	if err := writeExport(outputPath, export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

// Export builds the export of the current session without writing it.
func (b *Backend) Export() Export {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.buildExport()
}

func (b *Backend) buildExport() Export {
	export := Export{
		FormatVersion: FormatVersion,
		EndTick:       b.last.Tick,
		Duration:      b.last.SimTime.Seconds(),
		Cars:          make([]CarExport, 0, len(b.cars)),
		Events:        append([]core.CarEvent{}, b.orphan...),
	}
	if b.session != nil {
		export.Session = *b.session
	}

	origin, err := geo.NewOrigin(export.Session.Origin)
	if err != nil {
		origin, _ = geo.NewOrigin(core.GeoOrigin{})
	}

	for _, rec := range b.sortedLocked() {
		car := CarExport{
			Info:    rec.Car,
			Samples: append([]core.Sample{}, rec.Samples...),
			Events:  append([]core.CarEvent{}, rec.Events...),
		}
		positions := lo.Map(rec.Samples, func(s core.Sample, _ int) mgl64.Vec2 { return s.Position })
		if ls, err := origin.Trajectory(positions); err == nil {
			car.Trajectory = ls.AsText()
		}
		export.Cars = append(export.Cars, car)
	}
	return export
}

func writeExport(path string, export Export, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return encodeExport(f, export, compress)
}

// encodeExport writes export to w and closes it. A failed close is returned
// so a truncated file is never reported as written.
func encodeExport(w io.WriteCloser, export Export, compress bool) (err error) {
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close export: %w", cerr)
		}
	}()

	if !compress {
		return json.NewEncoder(w).Encode(export)
	}

	gzWriter := gzip.NewWriter(w)
	if err := json.NewEncoder(gzWriter).Encode(export); err != nil {
		_ = gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}

// ReadExport loads an export written by the memory backend. Files ending in
// .gz are decompressed.
func ReadExport(path string) (*Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var export Export
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	if export.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported export format version %d", export.FormatVersion)
	}
	return &export, nil
}
