// Package loggers writes the state of a running chain: a tab-delimited
// trace, a NEXUS tree log and a periodic screen report.
package loggers

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/tomopfuku/gobeast/model"
	"github.com/tomopfuku/gobeast/tree"
)

//Source is the chain state loggers read. Loggers never mutate it.
type Source interface {
	Columns() []model.Column
	Trees() []*tree.Tree
}

//Logger receives the chain state every Every() iterations.
type Logger interface {
	Name() string
	Every() int
	Start(src Source) error
	Log(iteration int, src Source) error
	Stop() error
}

//Finisher is a logger that also wants the final state of a run, which
//need not fall on a multiple of Every().
type Finisher interface {
	Finish(iteration int, src Source) error
}

//fileSink is a buffered writer that may own the underlying file.
type fileSink struct {
	w      *bufio.Writer
	closer io.Closer
}

func newFileSink(path string) (*fileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &fileSink{w: bufio.NewWriter(f), closer: f}, nil
}

func newWriterSink(w io.Writer) *fileSink {
	return &fileSink{w: bufio.NewWriter(w)}
}

func (s *fileSink) printf(format string, args ...any) error {
	_, err := fmt.Fprintf(s.w, format, args...)
	return err
}

func (s *fileSink) flush() error {
	return s.w.Flush()
}

func (s *fileSink) close() error {
	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
