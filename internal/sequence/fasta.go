package sequence

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one FASTA entry.
type Record struct {
	ID          string
	Description string
	Seq         []byte
}

// maxLine allows single-line chromosome-scale records.
const maxLine = 64 * 1024 * 1024

// ReadFASTA reads every record from r. Lines starting with ';' are comments.
// Input without any header is treated as a single anonymous record.
func ReadFASTA(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var (
		recs []Record
		cur  *Record
	)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case strings.HasPrefix(line, ">"):
			header := strings.TrimSpace(line[1:])
			id, desc, _ := strings.Cut(header, " ")
			recs = append(recs, Record{ID: id, Description: strings.TrimSpace(desc)})
			cur = &recs[len(recs)-1]
		case strings.HasPrefix(line, ";"):
		default:
			if cur == nil {
				if strings.TrimSpace(line) == "" {
					continue
				}
				recs = append(recs, Record{})
				cur = &recs[len(recs)-1]
			}
			cur.Seq = append(cur.Seq, strings.TrimSpace(line)...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read fasta: %w", err)
	}
	return recs, nil
}

// ReadFASTAFile reads a FASTA file, transparently decompressing gzip input
// (detected by magic number or .gz suffix). "-" reads standard input.
func ReadFASTAFile(path string) ([]Record, error) {
	rc, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadFASTA(rc)
}

// Sequence validates the record and converts it to a Sequence. The label
// defaults to the record description, falling back to its ID.
func (r Record) Sequence(opts Options) (*Sequence, error) {
	if opts.Label == "" {
		opts.Label = r.Description
		if opts.Label == "" {
			opts.Label = r.ID
		}
	}
	return Parse(string(r.Seq), opts)
}

type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var err error
	for _, c := range m.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func openReader(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var sig [2]byte
	n, _ := fh.Read(sig[:])
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		_ = fh.Close()
		return nil, err
	}
	if (n == 2 && sig[0] == 0x1f && sig[1] == 0x8b) || strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(fh)
		if err != nil {
			_ = fh.Close()
			return nil, err
		}
		return &multiReadCloser{Reader: gr, closers: []io.Closer{gr, fh}}, nil
	}
	return fh, nil
}
