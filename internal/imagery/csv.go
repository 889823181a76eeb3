package imagery

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"minewatch/internal/daterange"
	"minewatch/internal/logging"
	"minewatch/internal/mines"
	"minewatch/internal/pixels"
	"minewatch/internal/services"
)

// CSVProvider replays per-mine pixel time series exported to CSV. Files are
// looked up as mine_<id>.csv, then cil_mine_pixel_timeseries_<id>.csv.
type CSVProvider struct {
	Dir    string
	Logger *slog.Logger
}

// NewCSVProvider returns a provider reading from dir.
func NewCSVProvider(dir string, logger *slog.Logger) *CSVProvider {
	return &CSVProvider{Dir: dir, Logger: logging.NewComponentLogger(logger, "imagery")}
}

// Fetch implements Provider.
func (p *CSVProvider) Fetch(ctx context.Context, mine mines.Mine, window daterange.Range) ([]pixels.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := p.locate(mine.ID)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrProviderUnavailable, "imagery", "open csv", path, err)
	}
	defer file.Close()

	obs, skipped, err := ReadCSV(file)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "imagery", "read csv", path, err)
	}
	obs = filterWindow(obs, mine.ID, window)

	if p.Logger != nil {
		p.Logger.Debug("csv samples loaded",
			logging.String("path", path),
			logging.Int("rows", len(obs)),
			logging.Int("skipped_rows", skipped),
			logging.String("window", window.String()),
		)
	}
	return obs, nil
}

func (p *CSVProvider) locate(mineID int64) (string, error) {
	id := strconv.FormatInt(mineID, 10)
	candidates := []string{
		filepath.Join(p.Dir, "mine_"+id+".csv"),
		filepath.Join(p.Dir, "cil_mine_pixel_timeseries_"+id+".csv"),
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", services.Wrap(
		services.ErrProviderUnavailable,
		"imagery",
		"locate csv",
		fmt.Sprintf("no sample file for mine %d in %s", mineID, p.Dir),
		os.ErrNotExist,
	)
}

// ReadCSV decodes samples with a header row. Header names are matched
// case-insensitively against Columns; extra columns are ignored. Rows with an
// unparseable mine_id or date are skipped and counted. Unparseable band values
// decode as NaN.
func ReadCSV(r io.Reader) ([]pixels.Observation, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("empty csv")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, 0, err
	}

	var (
		out     []pixels.Observation
		skipped int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("read row: %w", err)
		}
		field := func(name string) string {
			i := index[strings.ToLower(name)]
			if i >= len(record) {
				return ""
			}
			return record[i]
		}
		mineID, err := strconv.ParseInt(strings.TrimSpace(field("mine_id")), 10, 64)
		if err != nil {
			if f, ferr := strconv.ParseFloat(strings.TrimSpace(field("mine_id")), 64); ferr == nil && f == float64(int64(f)) {
				mineID = int64(f)
			} else {
				skipped++
				continue
			}
		}
		row := Row{
			MineID:    mineID,
			Date:      field("date"),
			Latitude:  parseBand(field("latitude")),
			Longitude: parseBand(field("longitude")),
			B4:        parseBand(field("B4")),
			B8:        parseBand(field("B8")),
			B11:       parseBand(field("B11")),
			NDVI:      parseBand(field("NDVI")),
			NBR:       parseBand(field("NBR")),
		}
		o, ok := row.Observation()
		if !ok || !finiteCoordinate(o.Location) {
			skipped++
			continue
		}
		out = append(out, o)
	}
	return out, skipped, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	var missing []string
	for _, col := range Columns {
		if _, ok := index[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func finiteCoordinate(loc pixels.Location) bool {
	return loc.Lat == loc.Lat && loc.Lon == loc.Lon &&
		loc.Lat >= -90 && loc.Lat <= 90 && loc.Lon >= -180 && loc.Lon <= 180
}

// WriteCSV encodes observations with the Columns header, the layout ReadCSV
// and CSVProvider accept.
func WriteCSV(w io.Writer, obs []pixels.Observation) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	formatFloat := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, o := range obs {
		record := []string{
			strconv.FormatInt(o.MineID, 10),
			o.Date.String(),
			formatFloat(o.Location.Lat),
			formatFloat(o.Location.Lon),
			formatFloat(o.Bands.B4),
			formatFloat(o.Bands.B8),
			formatFloat(o.Bands.B11),
			formatFloat(o.Bands.NDVI),
			formatFloat(o.Bands.NBR),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
