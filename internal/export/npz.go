package export

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/ephyalign/internal/epoch"
)

// npyMagic opens every .npy member; format version 1.0.
const npyMagic = "\x93NUMPY\x01\x00"

// writeNPZ writes an uncompressed NumPy archive, the layout numpy.savez
// produces, with float64 arrays epochs (n, len), time (len,),
// event_times (n,) and mean (len,).
func writeNPZ(w io.Writer, set *epoch.Set) error {
	zw := zip.NewWriter(w)
	n, width := set.Len(), set.EpochLen()

	flat := make([]float64, 0, n*width)
	for _, ep := range set.Epochs {
		flat = append(flat, ep.Samples...)
	}
	mean := set.Mean()
	if mean == nil {
		mean = make([]float64, width)
	}

	arrays := []struct {
		name  string
		shape []int
		data  []float64
	}{
		{"epochs", []int{n, width}, flat},
		{"time", []int{width}, set.Time()},
		{"event_times", []int{n}, set.EventTimes()},
		{"mean", []int{width}, mean},
	}
	for _, a := range arrays {
		f, err := zw.CreateHeader(&zip.FileHeader{Name: a.name + ".npy", Method: zip.Store})
		if err != nil {
			return err
		}
		if err := writeNPY(f, a.shape, a.data); err != nil {
			return fmt.Errorf("%s.npy: %w", a.name, err)
		}
	}
	return zw.Close()
}

// writeNPY writes one little-endian float64 array in C order.
func writeNPY(w io.Writer, shape []int, data []float64) error {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	tuple := strings.Join(dims, ", ")
	if len(shape) == 1 {
		tuple += ","
	}
	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%s), }", tuple)
	// magic + 2-byte length + header + newline, padded to 64 bytes.
	total := len(npyMagic) + 2 + len(header) + 1
	header += strings.Repeat(" ", (64-total%64)%64) + "\n"

	buf := make([]byte, 0, len(npyMagic)+2+len(header)+8*len(data))
	buf = append(buf, npyMagic...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(header)))
	buf = append(buf, header...)
	for _, v := range data {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	_, err := w.Write(buf)
	return err
}
