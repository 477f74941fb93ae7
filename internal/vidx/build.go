package vidx

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/carbocation/pfx"
)

const schema = `
CREATE TABLE Metadata (
	filename TEXT NOT NULL,
	file_size INT NOT NULL,
	index_creation_time INT NOT NULL
);
CREATE TABLE Variant (
	chromosome TEXT NOT NULL,
	position INT NOT NULL,
	end_position INT NOT NULL,
	file_start_position INT NOT NULL,
	size_in_bytes INT NOT NULL
);
`

const indexDDL = `CREATE INDEX Variant_position ON Variant (chromosome, position)`

// Open opens an existing sidecar index.
func Open(path string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, pfx.Err(err)
	}

	db, err := connect(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	x := &Index{DB: db, Metadata: &Metadata{}}

	// Indexes written by older builds may lack metadata; ignore any error
	_ = x.DB.Get(x.Metadata, "SELECT * FROM Metadata LIMIT 1")

	return x, nil
}

// Build scans a plain-text VCF and writes its sidecar index next to it,
// replacing any previous index. It returns the number of indexed records.
func Build(vcfPath string) (int, error) {
	f, err := os.Open(vcfPath)
	if err != nil {
		return 0, pfx.Err(err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, pfx.Err(err)
	}

	magic := make([]byte, 2)
	if _, err := io.ReadFull(f, magic); err != nil {
		return 0, pfx.Err(fmt.Errorf("read %s: %w", vcfPath, err))
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		return 0, pfx.Err(fmt.Errorf("%s is compressed; sidecar indexes need plain text (use a tabix index for bgzip files)", vcfPath))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, pfx.Err(err)
	}

	idxPath := PathFor(vcfPath)
	if err := os.Remove(idxPath); err != nil && !os.IsNotExist(err) {
		return 0, pfx.Err(err)
	}

	db, err := connect(idxPath)
	if err != nil {
		return 0, pfx.Err(err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return 0, pfx.Err(err)
	}

	tx, err := db.Beginx()
	if err != nil {
		return 0, pfx.Err(err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO Variant (chromosome, position, end_position, file_start_position, size_in_bytes) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, pfx.Err(err)
	}
	defer stmt.Close()

	reader := bufio.NewReaderSize(f, 64*1024)
	var offset int64
	lineNumber := 0
	n := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				break
			}
			return 0, pfx.Err(err)
		}
		lineNumber++
		start := offset
		offset += int64(len(line))

		text := strings.TrimRight(line, "\r\n")
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		entry, err := entryFromLine(text)
		if err != nil {
			return 0, pfx.Err(fmt.Errorf("line %d: %w", lineNumber, err))
		}
		if _, err := stmt.Exec(entry.Chromosome, entry.Position, entry.EndPosition, start, int64(len(line))); err != nil {
			return 0, pfx.Err(err)
		}
		n++
	}

	if _, err := tx.Exec(indexDDL); err != nil {
		return 0, pfx.Err(err)
	}
	if _, err := tx.Exec(`INSERT INTO Metadata (filename, file_size, index_creation_time) VALUES (?, ?, ?)`,
		filepath.Base(vcfPath), st.Size(), time.Now().Unix()); err != nil {
		return 0, pfx.Err(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, pfx.Err(err)
	}
	return n, nil
}

// entryFromLine extracts CHROM, POS and the REF span from a data line.
func entryFromLine(line string) (Entry, error) {
	chrom, rest, ok := strings.Cut(line, "\t")
	if !ok {
		return Entry{}, fmt.Errorf("too few columns")
	}
	posStr, rest, ok := strings.Cut(rest, "\t")
	if !ok {
		return Entry{}, fmt.Errorf("too few columns")
	}
	_, rest, ok = strings.Cut(rest, "\t") // ID
	if !ok {
		return Entry{}, fmt.Errorf("too few columns")
	}
	ref, _, _ := strings.Cut(rest, "\t")

	pos, err := strconv.ParseInt(posStr, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid position %q", posStr)
	}
	end := pos
	if len(ref) > 1 {
		end = pos + int64(len(ref)) - 1
	}
	return Entry{Chromosome: chrom, Position: pos, EndPosition: end}, nil
}
