package alignment

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/TuftsBCB/io/fasta"
	"github.com/TuftsBCB/seq"
)

//Alignment holds one state mask per taxon per site.
type Alignment struct {
	Taxa  []string
	Sites [][]uint32
}

//SiteCount returns the number of aligned columns.
func (a *Alignment) SiteCount() int {
	if len(a.Sites) == 0 {
		return 0
	}
	return len(a.Sites[0])
}

//ReadFASTAFile will read an aligned FASTA file.
func ReadFASTAFile(path string) (*Alignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := ReadFASTA(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

//ReadFASTA will read aligned sequences. Sequence lines may wrap; the
//taxon name is the header up to the first whitespace.
func ReadFASTA(r io.Reader) (*Alignment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}
	seqs, err := fasta.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(seqs) == 0 || len(seqs[0].Residues) == 0 {
		return nil, ErrEmpty
	}
	a := &Alignment{Taxa: make([]string, len(seqs)), Sites: make([][]uint32, len(seqs))}
	seen := make(map[string]bool, len(seqs))
	width := len(seqs[0].Residues)
	for i, sq := range seqs {
		name, err := taxonName(sq)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTaxon, name)
		}
		seen[name] = true
		a.Taxa[i] = name
		if len(sq.Residues) != width {
			return nil, fmt.Errorf("%w: %s has %d sites, %s has %d", ErrUnequalLength, name, len(sq.Residues), a.Taxa[0], width)
		}
		row := make([]uint32, width)
		for j, c := range sq.Residues {
			m, err := StateMask(byte(c))
			if err != nil {
				return nil, fmt.Errorf("%s site %d: %w", name, j+1, err)
			}
			row[j] = m
		}
		a.Sites[i] = row
	}
	return a, nil
}

func taxonName(sq seq.Sequence) (string, error) {
	fields := strings.Fields(sq.Name)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: header without a name", ErrFormat)
	}
	return fields[0], nil
}
