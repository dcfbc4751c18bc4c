// Package evidence provides a streaming reader for tab-separated PSM evidence
// exports. The first non-comment line is a header naming the columns; column
// order is free and unknown columns are ignored.
//
// Recognized columns:
//
//	source_group   provenance path such as "/tissue/A" (default "/")
//	source         spectrum file name (required)
//	native_id      spectrum native id (required)
//	index          spectrum index within the source (default -1)
//	precursor_mz   observed precursor m/z (default 0, unknown)
//	charge         precursor charge (required)
//	rank           PSM rank (default 1)
//	qvalue         PSM q-value (required)
//	sequence       unmodified peptide sequence (required)
//	modifications  "Oxidation@M3;57.021464@5" (see core.ModDatabase.ParseModString)
//	proteins       "ACC1:12;ACC2" where the optional number is the 0-based offset (required)
//	description    protein descriptions separated by ';', aligned with proteins
package evidence

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/IDFilter/pkg/core"
)

const (
	colSourceGroup   = "source_group"
	colSource        = "source"
	colNativeID      = "native_id"
	colIndex         = "index"
	colPrecursorMZ   = "precursor_mz"
	colCharge        = "charge"
	colRank          = "rank"
	colQValue        = "qvalue"
	colSequence      = "sequence"
	colModifications = "modifications"
	colProteins      = "proteins"
	colDescription   = "description"
)

var requiredColumns = []string{colSource, colNativeID, colCharge, colQValue, colSequence, colProteins}

const maxLineBytes = 4 * 1024 * 1024

// Reader provides streaming access to an evidence export.
type Reader struct {
	scanner *bufio.Scanner
	modDB   *core.ModDatabase
	lineNum int
	columns map[string]int
	current *core.EvidenceRecord
	err     error
}

// NewReader creates a new evidence reader. A nil modDB uses the default
// modification table.
func NewReader(r io.Reader, modDB *core.ModDatabase) *Reader {
	if modDB == nil {
		modDB = core.DefaultModDatabase()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Reader{
		scanner: scanner,
		modDB:   modDB,
	}
}

// Next advances to the next record. Returns false at end of input or on error.
func (r *Reader) Next() bool {
	r.current = nil
	if r.err != nil {
		return false
	}

	rec, err := r.readRecord()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}
	r.current = rec
	return true
}

// Record returns the current record.
func (r *Reader) Record() *core.EvidenceRecord {
	return r.current
}

// Err returns any error encountered during reading.
func (r *Reader) Err() error {
	return r.err
}

// Line returns the number of input lines consumed so far.
func (r *Reader) Line() int {
	return r.lineNum
}

func (r *Reader) readRecord() (*core.EvidenceRecord, error) {
	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if r.columns == nil {
			if err := r.parseHeader(fields); err != nil {
				return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			continue
		}

		rec, err := r.parseFields(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		return rec, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if r.columns == nil && r.lineNum > 0 {
		return nil, fmt.Errorf("no header line found")
	}
	return nil, io.EOF
}

func (r *Reader) parseHeader(fields []string) error {
	columns := make(map[string]int, len(fields))
	for i, name := range fields {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, dup := columns[name]; dup {
			return fmt.Errorf("duplicate column %q", name)
		}
		columns[name] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	r.columns = columns
	return nil
}

// field returns the trimmed value of a column, empty when the column is absent
// or the row is short.
func (r *Reader) field(fields []string, name string) string {
	i, ok := r.columns[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func (r *Reader) parseFields(fields []string) (*core.EvidenceRecord, error) {
	rec := &core.EvidenceRecord{
		SourceGroup:   r.field(fields, colSourceGroup),
		Source:        r.field(fields, colSource),
		NativeID:      r.field(fields, colNativeID),
		Sequence:      strings.ToUpper(r.field(fields, colSequence)),
		SpectrumIndex: -1,
		Rank:          1,
		Line:          r.lineNum,
	}
	if rec.SourceGroup == "" {
		rec.SourceGroup = "/"
	}

	var err error
	if v := r.field(fields, colIndex); v != "" {
		if rec.SpectrumIndex, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid index '%s': %w", v, err)
		}
	}
	if v := r.field(fields, colPrecursorMZ); v != "" {
		if rec.PrecursorMZ, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid precursor m/z '%s': %w", v, err)
		}
	}
	if v := r.field(fields, colCharge); v != "" {
		if rec.Charge, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid charge '%s': %w", v, err)
		}
	}
	if v := r.field(fields, colRank); v != "" {
		if rec.Rank, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid rank '%s': %w", v, err)
		}
	}
	v := r.field(fields, colQValue)
	if rec.QValue, err = strconv.ParseFloat(v, 64); err != nil {
		return nil, fmt.Errorf("invalid q-value '%s': %w", v, err)
	}

	if rec.Modifications, err = r.modDB.ParseModString(r.field(fields, colModifications), rec.Sequence); err != nil {
		return nil, fmt.Errorf("peptide %s: %w", rec.Sequence, err)
	}
	if rec.Proteins, err = parseProteins(r.field(fields, colProteins), r.field(fields, colDescription)); err != nil {
		return nil, err
	}
	return rec, nil
}

// parseProteins parses "ACC1:12;ACC2" with descriptions aligned by position.
func parseProteins(proteins, descriptions string) ([]core.ProteinOccurrence, error) {
	var descs []string
	if descriptions != "" {
		descs = strings.Split(descriptions, ";")
	}

	var out []core.ProteinOccurrence
	for i, entry := range strings.Split(proteins, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		occ := core.ProteinOccurrence{Accession: entry}
		if acc, off, ok := strings.Cut(entry, ":"); ok {
			offset, err := strconv.Atoi(strings.TrimSpace(off))
			if err != nil {
				return nil, fmt.Errorf("invalid offset in protein '%s': %w", entry, err)
			}
			occ.Accession = strings.TrimSpace(acc)
			occ.Offset = offset
		}
		if i < len(descs) {
			occ.Description = strings.TrimSpace(descs[i])
		}
		out = append(out, occ)
	}
	return out, nil
}
