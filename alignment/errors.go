package alignment

import "errors"

var (
	// ErrUnknownCharacter indicates a sequence character that is not an IUPAC nucleotide code.
	ErrUnknownCharacter = errors.New("unknown nucleotide character")

	// ErrUnequalLength indicates sequences of different lengths.
	ErrUnequalLength = errors.New("sequences differ in length")

	// ErrEmpty indicates an alignment without sequences or sites.
	ErrEmpty = errors.New("empty alignment")

	// ErrDuplicateTaxon indicates two sequences with the same name.
	ErrDuplicateTaxon = errors.New("duplicate taxon in alignment")

	// ErrFormat indicates malformed FASTA input.
	ErrFormat = errors.New("malformed FASTA")
)
