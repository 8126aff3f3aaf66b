package statmodel

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Dataset is a collection of named numeric columns of equal length.
type Dataset struct {
	data  [][]Dtype
	names []string
	pos   map[string]int
}

// NewDataset returns a Dataset holding the given columns.  The columns
// are not copied.
func NewDataset(data [][]Dtype, names []string) Dataset {

	if len(data) != len(names) {
		msg := fmt.Sprintf("NewDataset: %d columns but %d names\n", len(data), len(names))
		panic(msg)
	}
	for j := range data {
		if len(data[j]) != len(data[0]) {
			msg := fmt.Sprintf("NewDataset: column '%s' has length %d, expected %d\n",
				names[j], len(data[j]), len(data[0]))
			panic(msg)
		}
	}

	pos := make(map[string]int)
	for j, na := range names {
		pos[na] = j
	}

	return Dataset{
		data:  data,
		names: names,
		pos:   pos,
	}
}

// Names returns the variable names.
func (ds Dataset) Names() []string {
	return ds.names
}

// Data returns the columns of the dataset.
func (ds Dataset) Data() [][]Dtype {
	return ds.data
}

// NumObs returns the number of observations (rows).
func (ds Dataset) NumObs() int {
	if len(ds.data) == 0 {
		return 0
	}
	return len(ds.data[0])
}

// Get returns the column with the given name.
func (ds Dataset) Get(name string) ([]Dtype, error) {
	j, ok := ds.pos[name]
	if !ok {
		return nil, &ConfigurationError{
			Op:     "Dataset.Get",
			Detail: fmt.Sprintf("variable '%s' not found in dataset", name),
		}
	}
	return ds.data[j], nil
}

// ReadCSV reads a dataset from CSV text.  The first row holds the
// variable names and every other field must parse as a number.
func ReadCSV(r io.Reader) (Dataset, error) {

	rd := csv.NewReader(r)
	rd.TrimLeadingSpace = true

	names, err := rd.Read()
	if err != nil {
		return Dataset{}, fmt.Errorf("ReadCSV: reading header: %w", err)
	}

	da := make([][]Dtype, len(names))
	for line := 2; ; line++ {
		row, err := rd.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return Dataset{}, fmt.Errorf("ReadCSV: %w", err)
		}

		for j := range names {
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return Dataset{}, fmt.Errorf("ReadCSV: line %d, column '%s': %w", line, names[j], err)
			}
			da[j] = append(da[j], v)
		}
	}

	return NewDataset(da, names), nil
}

// Indicator returns the one-hot indicator matrix of a grouping
// variable.  The distinct group values are sorted and returned as
// levels; column j of the indicator matrix corresponds to levels[j].
// Group codes must be finite.
func Indicator(groups []Dtype) (*mat.Dense, []float64, error) {

	seen := make(map[Dtype]bool)
	var levels []float64
	for i, g := range groups {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return nil, nil, &ConfigurationError{
				Op:     "Indicator",
				Detail: fmt.Sprintf("group code %v at position %d", g, i),
				Err:    ErrGroupCode,
			}
		}
		if !seen[g] {
			seen[g] = true
			levels = append(levels, g)
		}
	}
	sort.Float64s(levels)

	col := make(map[Dtype]int)
	for j, g := range levels {
		col[g] = j
	}

	z := mat.NewDense(len(groups), len(levels), nil)
	for i, g := range groups {
		z.Set(i, col[g], 1)
	}

	return z, levels, nil
}

// InterceptDesign returns the n-row design matrix with a leading column
// of ones followed by the given covariate columns.
func InterceptDesign(n int, covs ...[]Dtype) *mat.Dense {

	x := mat.NewDense(n, len(covs)+1, nil)
	x.SetCol(0, Ones(n))
	for j, c := range covs {
		x.SetCol(j+1, c)
	}

	return x
}
