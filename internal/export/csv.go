package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/roach88/ephyalign/internal/epoch"
)

// writeCSV writes the ATF matrix as CSV with a single header row.
func writeCSV(w io.Writer, set *epoch.Set) error {
	cw := csv.NewWriter(w)
	header := []string{"time_s"}
	for i := range set.Epochs {
		header = append(header, fmt.Sprintf("epoch_%d_%s", i+1, set.Channel.Unit))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, t := range set.Time() {
		row[0] = strconv.FormatFloat(t, 'f', 6, 64)
		for k, ep := range set.Epochs {
			row[k+1] = formatSample(ep.Samples[i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
