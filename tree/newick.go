package tree

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/TuftsBCB/io/newick"
)

//ErrNewick is wrapped by every Newick parse error.
var ErrNewick = errors.New("newick")

//ParseNewick reads one Newick tree (with or without the trailing
//semicolon) into a vertex hierarchy. Branch lengths default to 0,
//bracketed comments are dropped and underscores in labels read as
//spaces. Quoted labels are rejected.
func ParseNewick(s string) (*Vertex, error) {
	src, rest, _ := strings.Cut(stripComments(s), ";")
	if strings.TrimSpace(rest) != "" {
		return nil, fmt.Errorf("%w: unexpected %q after tree", ErrNewick, strings.TrimSpace(rest))
	}
	nt, err := newick.NewReader(strings.NewReader(strings.TrimSpace(src) + ";")).ReadTree()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNewick, err)
	}
	return fromNewick(nt)
}

func fromNewick(nt *newick.Tree) (*Vertex, error) {
	if strings.ContainsRune(nt.Label, '\'') {
		return nil, fmt.Errorf("%w: quoted label %s", ErrNewick, nt.Label)
	}
	v := &Vertex{}
	if nt.Length != nil {
		v.Length = *nt.Length
	}
	for i := range nt.Children {
		c, err := fromNewick(&nt.Children[i])
		if err != nil {
			return nil, err
		}
		v.AddChild(c)
	}
	name := strings.ReplaceAll(nt.Label, "_", " ")
	if len(v.Children) == 0 {
		v.Name = name
	} else if name != "" {
		v.Attributes = map[string]string{"label": name}
	}
	return v, nil
}

//stripComments drops [...] blocks, which the reader does not know.
func stripComments(s string) string {
	if !strings.Contains(s, "[") {
		return s
	}
	var b strings.Builder
	depth := 0
	for _, c := range s {
		switch {
		case c == '[':
			depth++
		case c == ']' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(c)
		}
	}
	return b.String()
}

//Newick writes the tree with taxon names and, when lengths is set,
//branch lengths.
func (t *Tree) Newick(lengths bool) string {
	return t.newick(lengths, func(n int) string { return quoteLabel(t.nodes[n].Taxon) })
}

//NewickNumbered writes the tree with leaves labelled by number+1, as used
//with a NEXUS translate block.
func (t *Tree) NewickNumbered() string {
	return t.newick(true, func(n int) string { return strconv.Itoa(n + 1) })
}

func (t *Tree) newick(lengths bool, label func(int) string) string {
	var buf bytes.Buffer
	var write func(int)
	write = func(n int) {
		if ch := t.nodes[n].Children; len(ch) > 0 {
			buf.WriteByte('(')
			for i, c := range ch {
				if i > 0 {
					buf.WriteByte(',')
				}
				write(c)
			}
			buf.WriteByte(')')
		} else {
			buf.WriteString(label(n))
		}
		if lengths && n != t.root {
			buf.WriteByte(':')
			buf.WriteString(strconv.FormatFloat(t.BranchLength(n), 'f', -1, 64))
		}
	}
	write(t.root)
	buf.WriteByte(';')
	return buf.String()
}

func quoteLabel(s string) string {
	if strings.ContainsAny(s, "(),:;[]'_\t\n") {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return strings.ReplaceAll(s, " ", "_")
}
