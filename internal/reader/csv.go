package reader

import (
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/naresrac/CNTK/internal/adapter"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CSVStream maps CSV columns to one stream.
type CSVStream struct {
	Name    string
	Columns []string
	// OneHot, when positive, expands a single integer column into a one-hot
	// vector of that size.
	OneHot int
}

// CSVConfig configures a CSVSource.
type CSVConfig struct {
	Streams []CSVStream
	// Sweeps is the number of passes over the data; 0 means one, negative
	// means unlimited.
	Sweeps int
}

// CSVSource serves rows of a CSV file with a header line. Each row is one
// single-step sequence.
type CSVSource struct {
	streams []CSVStream
	rows    map[string][]float32 // stream -> [numRows * dim]
	dims    map[string]int
	numRows int
	sweeps  int
	sweep   int
	cursor  int
}

// NewCSVSource parses r completely.
func NewCSVSource(r io.Reader, cfg CSVConfig) (*CSVSource, error) {
	if len(cfg.Streams) == 0 {
		return nil, errors.New("csv source without streams")
	}
	types := make(map[string]series.Type)
	for _, s := range cfg.Streams {
		for _, col := range s.Columns {
			types[col] = series.Float
		}
	}
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true), dataframe.WithTypes(types))
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "reading csv")
	}
	names := df.Names()

	src := &CSVSource{
		streams: cfg.Streams,
		rows:    make(map[string][]float32, len(cfg.Streams)),
		dims:    make(map[string]int, len(cfg.Streams)),
		numRows: df.Nrow(),
		sweeps:  cfg.Sweeps,
	}
	if src.sweeps == 0 {
		src.sweeps = 1
	}
	if src.numRows == 0 {
		return nil, errors.New("csv source has no rows")
	}
	for _, s := range cfg.Streams {
		if len(s.Columns) == 0 {
			return nil, errors.Errorf("stream %q has no columns", s.Name)
		}
		for _, col := range s.Columns {
			if !slices.Contains(names, col) {
				return nil, errors.Errorf("stream %q: no column %q (have %v)", s.Name, col, names)
			}
		}
		data, dim, err := streamData(df, s)
		if err != nil {
			return nil, err
		}
		src.rows[s.Name] = data
		src.dims[s.Name] = dim
	}
	klog.V(1).Infof("csv source: %d rows, %d streams", src.numRows, len(cfg.Streams))
	return src, nil
}

func streamData(df dataframe.DataFrame, s CSVStream) ([]float32, int, error) {
	n := df.Nrow()
	if s.OneHot > 0 {
		if len(s.Columns) != 1 {
			return nil, 0, errors.Errorf("one-hot stream %q needs exactly one column", s.Name)
		}
		data := make([]float32, n*s.OneHot)
		for row, v := range df.Col(s.Columns[0]).Float() {
			class := int(v)
			if float64(class) != v || class < 0 || class >= s.OneHot {
				return nil, 0, errors.Errorf("stream %q row %d: %v is not a class in [0, %d)", s.Name, row, v, s.OneHot)
			}
			data[row*s.OneHot+class] = 1
		}
		return data, s.OneHot, nil
	}
	dim := len(s.Columns)
	data := make([]float32, n*dim)
	for j, col := range s.Columns {
		for row, v := range df.Col(col).Float() {
			if math.IsNaN(v) {
				return nil, 0, fmt.Errorf("stream %q row %d: column %q is not a number", s.Name, row, col)
			}
			data[row*dim+j] = float32(v)
		}
	}
	return data, dim, nil
}

// NumRows returns the number of rows per sweep.
func (s *CSVSource) NumRows() int { return s.numRows }

// Dim returns the sample size of stream name, 0 if unknown.
func (s *CSVSource) Dim(name string) int { return s.dims[name] }

// Next implements Source. A minibatch never spans two sweeps.
func (s *CSVSource) Next(maxSamples int) (*Minibatch, error) {
	if maxSamples <= 0 {
		return nil, errors.Errorf("invalid minibatch size %d", maxSamples)
	}
	if s.cursor >= s.numRows {
		s.sweep++
		s.cursor = 0
	}
	if s.sweeps > 0 && s.sweep >= s.sweeps {
		return nil, io.EOF
	}

	start := s.cursor
	end := min(start+maxSamples, s.numRows)
	s.cursor = end

	mb := &Minibatch{
		Streams:    make(map[string]*adapter.Value, len(s.streams)),
		NumSamples: end - start,
		EndOfSweep: end == s.numRows,
	}
	for _, st := range s.streams {
		dim := s.dims[st.Name]
		rows := s.rows[st.Name]
		value := &adapter.Value{Sequences: make([]adapter.Sequence, end-start)}
		for i := range value.Sequences {
			row := start + i
			value.Sequences[i] = adapter.Sequence(rows[row*dim : (row+1)*dim : (row+1)*dim])
		}
		mb.Streams[st.Name] = value
	}
	return mb, nil
}
