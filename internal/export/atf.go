package export

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/ephyalign/internal/epoch"
)

// writeATF writes an Axon Text File 1.0: a fixed preamble, the optional
// header records, a column title row and one row per epoch sample. Column
// 0 is time relative to the event; column k is epoch k.
func writeATF(w io.Writer, set *epoch.Set) error {
	bw := bufio.NewWriter(w)
	ch := set.Channel

	starts := make([]string, set.Len())
	for i, t := range set.EventTimes() {
		starts[i] = strconv.FormatFloat(t*1000, 'f', 3, 64)
	}
	signals := make([]string, set.Len())
	titles := make([]string, set.Len())
	for i := range set.Epochs {
		signals[i] = quote(ch.Name)
		titles[i] = quote(fmt.Sprintf("Trace #%d (%s)", i+1, ch.Unit))
	}

	records := []string{
		quote("AcquisitionMode=Episodic Stimulation"),
		quote("Comment=epochs of " + filepath.Base(set.Path) + " channel " + strconv.Itoa(ch.Index)),
		quote("SignalsExported=" + ch.Name),
		strings.Join(append([]string{quote("Signals=")}, signals...), "\t"),
		quote("SweepStartTimesMS=" + strings.Join(starts, ",")),
	}

	fmt.Fprintf(bw, "ATF\t1.0\n%d\t%d\n", len(records), set.Len()+1)
	for _, r := range records {
		fmt.Fprintln(bw, r)
	}
	fmt.Fprintln(bw, strings.Join(append([]string{quote("Time (s)")}, titles...), "\t"))

	for i, t := range set.Time() {
		bw.WriteString(strconv.FormatFloat(t, 'f', 6, 64))
		for _, ep := range set.Epochs {
			bw.WriteByte('\t')
			bw.WriteString(formatSample(ep.Samples[i]))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `'`) + `"`
}

func formatSample(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
