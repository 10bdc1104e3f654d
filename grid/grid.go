// Package grid provides the in-memory raster layers the pipeline predicts
// over: rectangular float64 grids with a shared georeferenced extent, a
// NoData sentinel, and ESRI ASCII grid file I/O. Coordinate-reference-system
// handling beyond carrying the extent through to outputs is out of scope.
package grid

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Extent is the georeferenced placement of a grid: the lower-left corner and
// the square cell size.
type Extent struct {
	XMin     float64
	YMin     float64
	CellSize float64
}

// Grid is one raster layer. Cells are stored row-major with row 0 at the top
// (north), matching the ASCII grid file layout.
type Grid struct {
	Rows   int
	Cols   int
	Extent Extent
	NoData float64
	cells  []float64
}

// New creates a grid with every cell set to the NoData value.
func New(rows, cols int, extent Extent, noData float64) *Grid {
	g := &Grid{
		Rows:   rows,
		Cols:   cols,
		Extent: extent,
		NoData: noData,
		cells:  make([]float64, rows*cols),
	}
	for i := range g.cells {
		g.cells[i] = noData
	}
	return g
}

// At returns the value at (row, col).
func (g *Grid) At(row, col int) float64 {
	return g.cells[row*g.Cols+col]
}

// Set assigns the value at (row, col).
func (g *Grid) Set(row, col int, v float64) {
	g.cells[row*g.Cols+col] = v
}

// IsNoData reports whether the cell holds the NoData sentinel or NaN.
func (g *Grid) IsNoData(row, col int) bool {
	v := g.At(row, col)
	return v == g.NoData || math.IsNaN(v)
}

// SetNoData marks the cell as missing.
func (g *Grid) SetNoData(row, col int) {
	g.Set(row, col, g.NoData)
}

// CellCenter returns the map coordinates of a cell's center.
func (g *Grid) CellCenter(row, col int) (x, y float64) {
	x = g.Extent.XMin + (float64(col)+0.5)*g.Extent.CellSize
	y = g.Extent.YMin + (float64(g.Rows-1-row)+0.5)*g.Extent.CellSize
	return x, y
}

// CellAt returns the cell containing the map coordinates, and whether that
// cell lies inside the grid.
func (g *Grid) CellAt(x, y float64) (row, col int, ok bool) {
	col = int(math.Floor((x - g.Extent.XMin) / g.Extent.CellSize))
	rowFromBottom := int(math.Floor((y - g.Extent.YMin) / g.Extent.CellSize))
	row = g.Rows - 1 - rowFromBottom
	ok = row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
	return row, col, ok
}

// SameShape reports whether two grids share rows, cols, and extent.
func (g *Grid) SameShape(other *Grid) bool {
	return g.Rows == other.Rows && g.Cols == other.Cols && g.Extent == other.Extent
}

// Clone returns a deep copy sharing no storage with the receiver.
func (g *Grid) Clone() *Grid {
	out := New(g.Rows, g.Cols, g.Extent, g.NoData)
	copy(out.cells, g.cells)
	return out
}

const defaultNoData = -9999.0

// ReadASC reads an ESRI ASCII grid file.
func ReadASC(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open grid file")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	header := map[string]float64{}
	noData := defaultNoData
	var values []float64

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		key := strings.ToLower(fields[0])
		switch key {
		case "ncols", "nrows", "xllcorner", "yllcorner", "cellsize", "nodata_value":
			if len(fields) != 2 {
				return nil, errors.NewValueError("ReadASC", "malformed header line: "+line)
			}
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "header %s", key)
			}
			if key == "nodata_value" {
				noData = v
			} else {
				header[key] = v
			}
		default:
			for _, field := range fields {
				v, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return nil, errors.Wrap(err, "parse cell value")
				}
				values = append(values, v)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read grid file")
	}

	for _, required := range []string{"ncols", "nrows", "xllcorner", "yllcorner", "cellsize"} {
		if _, ok := header[required]; !ok {
			return nil, errors.NewValueError("ReadASC", "missing header: "+required)
		}
	}

	rows := int(header["nrows"])
	cols := int(header["ncols"])
	if len(values) != rows*cols {
		return nil, errors.NewDimensionError("ReadASC", rows*cols, len(values), 0)
	}

	g := New(rows, cols, Extent{
		XMin:     header["xllcorner"],
		YMin:     header["yllcorner"],
		CellSize: header["cellsize"],
	}, noData)
	copy(g.cells, values)
	return g, nil
}

// WriteASC writes the grid as an ESRI ASCII grid file, carrying the same
// extent it was created with.
func (g *Grid) WriteASC(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create grid file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ncols %d\n", g.Cols)
	fmt.Fprintf(w, "nrows %d\n", g.Rows)
	fmt.Fprintf(w, "xllcorner %g\n", g.Extent.XMin)
	fmt.Fprintf(w, "yllcorner %g\n", g.Extent.YMin)
	fmt.Fprintf(w, "cellsize %g\n", g.Extent.CellSize)
	fmt.Fprintf(w, "NODATA_value %g\n", g.NoData)

	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			if c > 0 {
				if err := w.WriteByte(' '); err != nil {
					return errors.Wrap(err, "write grid")
				}
			}
			if _, err := w.WriteString(strconv.FormatFloat(g.At(r, c), 'g', -1, 64)); err != nil {
				return errors.Wrap(err, "write grid")
			}
		}
		if err := w.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "write grid")
		}
	}
	return errors.Wrap(w.Flush(), "flush grid")
}
