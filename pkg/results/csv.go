package results

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/gridplan/gridplan/pkg/types"
)

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func periodCols(p types.Period) []string {
	return []string{
		strconv.Itoa(p.Year),
		strconv.Itoa(p.Month),
		strconv.Itoa(p.Day),
		strconv.Itoa(p.Hour),
	}
}

func writeAll(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteGenerationCSV writes one line per plant and period.
func WriteGenerationCSV(w io.Writer, r *Report) error {
	rows := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := append([]string{row.PlantID}, periodCols(row.Period)...)
		rec = append(rec, ftoa(row.GenerationMW), ftoa(row.Emissions), ftoa(row.HealthCost))
		rows = append(rows, rec)
	}
	return writeAll(w,
		[]string{"plant_id", "year", "month", "day", "hour", "generation_mw", "emissions", "health_cost"},
		rows)
}

// WritePlantsCSV writes the per-plant summaries. Per-year capacities and
// choices are joined with ';'.
func WritePlantsCSV(w io.Writer, r *Report) error {
	rows := make([][]string, 0, len(r.Plants))
	for _, p := range r.Plants {
		caps := make([]string, len(p.Capacity))
		for i, c := range p.Capacity {
			caps[i] = ftoa(c)
		}
		rows = append(rows, []string{
			p.PlantID,
			p.Name,
			string(p.Fuel),
			string(p.Type),
			string(p.HealthSource),
			ftoa(p.NameplateMW),
			ftoa(p.GenerationMWh),
			ftoa(p.Emissions),
			p.HealthCost.StringFixed(2),
			ftoa(p.ReferenceCost),
			strings.Join(caps, ";"),
			strings.Join(p.TechChoice, ";"),
			strconv.Itoa(p.Starts),
		})
	}
	return writeAll(w, []string{
		"plant_id", "name", "fuel", "type", "health_source", "nameplate_mw",
		"generation_mwh", "emissions", "health_cost", "reference_cost",
		"capacity_mw", "tech_choice", "starts",
	}, rows)
}

// WriteTypeLoadCSV writes the generation per plant type and period.
func WriteTypeLoadCSV(w io.Writer, r *Report) error {
	rows := make([][]string, 0, len(r.TypeLoads))
	for _, tl := range r.TypeLoads {
		rec := append(periodCols(tl.Period), string(tl.Type), ftoa(tl.GenerationMW))
		rows = append(rows, rec)
	}
	return writeAll(w, []string{"year", "month", "day", "hour", "type", "generation_mw"}, rows)
}

// WriteCommitmentCSV writes the commitment matrix as 0/1 flags.
func WriteCommitmentCSV(w io.Writer, r *Report) error {
	flag := func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	}
	rows := make([][]string, 0, len(r.Commitment))
	for _, c := range r.Commitment {
		rec := append([]string{c.PlantID}, periodCols(c.Period)...)
		rec = append(rec, flag(c.On), flag(c.Start))
		rows = append(rows, rec)
	}
	return writeAll(w, []string{"plant_id", "year", "month", "day", "hour", "on", "start"}, rows)
}
