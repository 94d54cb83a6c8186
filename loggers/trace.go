package loggers

import (
	"io"
	"strconv"
	"strings"
)

//Trace writes one tab-delimited line of column values per logged state,
//after a header line of column labels.
type Trace struct {
	sink  *fileSink
	every int
	name  string
}

//NewTraceFile will create path and log to it every `every` iterations.
func NewTraceFile(path string, every int) (*Trace, error) {
	s, err := newFileSink(path)
	if err != nil {
		return nil, err
	}
	return &Trace{sink: s, every: every, name: path}, nil
}

//NewTrace will log to w.
func NewTrace(w io.Writer, every int) *Trace {
	return &Trace{sink: newWriterSink(w), every: every, name: "trace"}
}

func (t *Trace) Name() string { return t.name }
func (t *Trace) Every() int   { return t.every }

//Start writes the header.
func (t *Trace) Start(src Source) error {
	cols := src.Columns()
	labels := make([]string, 0, len(cols)+1)
	labels = append(labels, "state")
	for _, c := range cols {
		labels = append(labels, c.Label)
	}
	return t.sink.printf("%s\n", strings.Join(labels, "\t"))
}

//Log writes one line.
func (t *Trace) Log(iteration int, src Source) error {
	cols := src.Columns()
	var b strings.Builder
	b.WriteString(strconv.Itoa(iteration))
	for _, c := range cols {
		b.WriteByte('\t')
		b.WriteString(strconv.FormatFloat(c.Value(), 'g', -1, 64))
	}
	b.WriteByte('\n')
	if err := t.sink.printf("%s", b.String()); err != nil {
		return err
	}
	return t.sink.flush()
}

//Stop flushes and closes the file.
func (t *Trace) Stop() error {
	return t.sink.close()
}
