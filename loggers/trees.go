package loggers

import (
	"fmt"
	"io"
	"strings"
)

//TreeLog writes sampled trees as a NEXUS trees block with a translate
//table, leaves numbered from 1.
type TreeLog struct {
	sink  *fileSink
	every int
	name  string
}

//NewTreeLogFile will create path and log trees every `every` iterations.
func NewTreeLogFile(path string, every int) (*TreeLog, error) {
	s, err := newFileSink(path)
	if err != nil {
		return nil, err
	}
	return &TreeLog{sink: s, every: every, name: path}, nil
}

//NewTreeLog will log to w.
func NewTreeLog(w io.Writer, every int) *TreeLog {
	return &TreeLog{sink: newWriterSink(w), every: every, name: "trees"}
}

func (l *TreeLog) Name() string { return l.name }
func (l *TreeLog) Every() int   { return l.every }

//Start writes the NEXUS header and translate block of the first tree.
func (l *TreeLog) Start(src Source) error {
	trees := src.Trees()
	if len(trees) == 0 {
		return fmt.Errorf("tree log %s: no tree to log", l.name)
	}
	var b strings.Builder
	b.WriteString("#NEXUS\n\nBegin taxa;\n")
	taxa := trees[0].Taxa()
	fmt.Fprintf(&b, "\tDimensions ntax=%d;\n\tTaxlabels\n", len(taxa))
	for _, t := range taxa {
		fmt.Fprintf(&b, "\t\t%s\n", t)
	}
	b.WriteString("\t\t;\nEnd;\n\nBegin trees;\n\tTranslate\n")
	for i, t := range taxa {
		sep := ","
		if i == len(taxa)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "\t\t%d %s%s\n", i+1, t, sep)
	}
	b.WriteString("\t\t;\n")
	return l.sink.printf("%s", b.String())
}

//Log writes one tree line per tree of the source.
func (l *TreeLog) Log(iteration int, src Source) error {
	trees := src.Trees()
	for i, t := range trees {
		name := fmt.Sprintf("STATE_%d", iteration)
		if len(trees) > 1 {
			name = fmt.Sprintf("STATE_%d_%d", iteration, i+1)
		}
		if err := l.sink.printf("tree %s = [&R] %s\n", name, t.NewickNumbered()); err != nil {
			return err
		}
	}
	return l.sink.flush()
}

//Stop closes the trees block and the file.
func (l *TreeLog) Stop() error {
	if err := l.sink.printf("End;\n"); err != nil {
		return err
	}
	return l.sink.close()
}
