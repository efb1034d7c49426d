package mssqllog

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

const timestampLayout = "01/02/2006 15:04:05.000000"

// WriteCSV writes header row `Begin Time, End Time, Query` followed by one
// row per reconstructed record, UTF-8 encoded, matching §6's output
// contract.
func WriteCSV(w io.Writer, records []Reconstructed) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Begin Time", "End Time", "Query"}); err != nil {
		return err
	}
	for _, r := range records {
		begin := ""
		if r.BeginTime != nil {
			begin = r.BeginTime.Format(timestampLayout)
		}
		end := ""
		if r.EndTime != nil {
			end = r.EndTime.Format(timestampLayout)
		}
		if err := cw.Write([]string{begin, end, r.Query}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile is a convenience wrapper writing records to path.
func WriteCSVFile(path string, records []Reconstructed) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteCSV(f, records); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("rows", len(records)).Msg("wrote CSV output")
	return nil
}
