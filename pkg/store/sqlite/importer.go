package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ChrisMcGann/IDFilter/pkg/core"
	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// DefaultChunkSize is the number of records committed per import transaction.
const DefaultChunkSize = 5000

// defaultAnalysis is the analysis id stamped on imported PSMs.
const defaultAnalysis = 1

// ImportStats counts what an Importer wrote.
type ImportStats struct {
	Records          int64
	Proteins         int64
	Peptides         int64
	PeptideInstances int64
	PSMs             int64
	Spectra          int64
	Sources          int64
	SourceGroups     int64
	Modifications    int64
}

type instanceKey struct {
	protein, peptide int64
	offset           int
}

type spectrumKey struct {
	source   int64
	nativeID string
}

type modificationKey struct {
	name string
	mass float64
}

// Importer normalizes evidence records into the canonical tables. Rows are
// deduplicated by natural key (accession, sequence, source name, native id)
// and committed every chunk-size records.
type Importer struct {
	db        *sql.DB
	ctx       context.Context
	tx        *sql.Tx
	stmts     map[string]*sql.Stmt
	chunkSize int
	pending   int

	proteins      map[string]int64
	peptides      map[string]int64
	instances     map[instanceKey]bool
	groups        map[string]int64
	sources       map[string]int64
	spectra       map[spectrumKey]int64
	modifications map[modificationKey]int64

	stats ImportStats
}

var insertStatements = map[string]string{
	"group":        "INSERT INTO SpectrumSourceGroup (Name) VALUES (?)",
	"source":       "INSERT INTO SpectrumSource (Name, URL, SourceGroup) VALUES (?, ?, ?)",
	"link":         "INSERT INTO SpectrumSourceGroupLink (Source, SourceGroup) VALUES (?, ?)",
	"spectrum":     "INSERT INTO Spectrum (Source, ScanIndex, NativeID, PrecursorMZ) VALUES (?, ?, ?, ?)",
	"protein":      "INSERT INTO Protein (Accession, Description, Sequence) VALUES (?, ?, ?)",
	"peptide":      "INSERT INTO Peptide (Sequence, MonoisotopicMass, MolecularWeight) VALUES (?, ?, ?)",
	"instance":     "INSERT INTO PeptideInstance (Protein, Peptide, Offset, Length, NTerminusIsSpecific, CTerminusIsSpecific, MissedCleavages) VALUES (?, ?, ?, ?, ?, ?, ?)",
	"psm":          "INSERT INTO PeptideSpectrumMatch (Spectrum, Analysis, Peptide, QValue, MonoisotopicMass, MolecularWeight, MonoisotopicMassError, MolecularWeightError, Rank, Charge) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
	"modification": "INSERT INTO Modification (MonoMassDelta, AvgMassDelta, Name) VALUES (?, ?, ?)",
	"peptideMod":   "INSERT INTO PeptideModification (PeptideSpectrumMatch, Modification, Offset, Site) VALUES (?, ?, ?, ?)",
}

// NewImporter prepares an import into the canonical tables. Importing into a
// filtered database is refused: the rows would bypass the baseline.
func (s *Store) NewImporter(ctx context.Context, chunkSize int) (*Importer, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	filtered, err := viewExists(ctx, s.db, store.Unfiltered)
	if err != nil {
		return nil, err
	}
	if filtered {
		return nil, fmt.Errorf("database %s has been filtered; import into an unfiltered database", s.path)
	}

	im := &Importer{
		db:            s.db,
		ctx:           ctx,
		chunkSize:     chunkSize,
		proteins:      make(map[string]int64),
		peptides:      make(map[string]int64),
		instances:     make(map[instanceKey]bool),
		groups:        make(map[string]int64),
		sources:       make(map[string]int64),
		spectra:       make(map[spectrumKey]int64),
		modifications: make(map[modificationKey]int64),
	}
	if err := im.loadExisting(); err != nil {
		return nil, err
	}
	if err := im.beginChunk(); err != nil {
		return nil, err
	}
	return im, nil
}

// loadExisting seeds the dedup maps so repeated imports append.
func (im *Importer) loadExisting() error {
	load := func(query string, scan func(*sql.Rows) error) error {
		rows, err := im.db.QueryContext(im.ctx, query)
		if err != nil {
			return store.Wrap("load existing keys", err)
		}
		defer rows.Close()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return store.Wrap("load existing keys", err)
			}
		}
		return store.Wrap("load existing keys", rows.Err())
	}

	var id int64
	var name string
	steps := []struct {
		query string
		scan  func(*sql.Rows) error
	}{
		{"SELECT Id, Accession FROM Protein", func(r *sql.Rows) error {
			err := r.Scan(&id, &name)
			im.proteins[name] = id
			return err
		}},
		{"SELECT Id, Sequence FROM Peptide", func(r *sql.Rows) error {
			err := r.Scan(&id, &name)
			im.peptides[name] = id
			return err
		}},
		{"SELECT Protein, Peptide, Offset FROM PeptideInstance", func(r *sql.Rows) error {
			var k instanceKey
			err := r.Scan(&k.protein, &k.peptide, &k.offset)
			im.instances[k] = true
			return err
		}},
		{"SELECT Id, Name FROM SpectrumSourceGroup", func(r *sql.Rows) error {
			err := r.Scan(&id, &name)
			im.groups[name] = id
			return err
		}},
		{"SELECT Id, Name FROM SpectrumSource", func(r *sql.Rows) error {
			err := r.Scan(&id, &name)
			im.sources[name] = id
			return err
		}},
		{"SELECT Id, Source, NativeID FROM Spectrum", func(r *sql.Rows) error {
			var k spectrumKey
			err := r.Scan(&id, &k.source, &k.nativeID)
			im.spectra[k] = id
			return err
		}},
		{"SELECT Id, Name, MonoMassDelta FROM Modification", func(r *sql.Rows) error {
			var k modificationKey
			err := r.Scan(&id, &k.name, &k.mass)
			k.mass = core.RoundFloat(k.mass, 6)
			im.modifications[k] = id
			return err
		}},
	}
	for _, step := range steps {
		if err := load(step.query, step.scan); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) beginChunk() error {
	tx, err := im.db.BeginTx(im.ctx, nil)
	if err != nil {
		return store.Wrap("begin import transaction", err)
	}
	im.tx = tx
	im.stmts = make(map[string]*sql.Stmt, len(insertStatements))
	for name, query := range insertStatements {
		stmt, err := tx.PrepareContext(im.ctx, query)
		if err != nil {
			return store.Wrap(fmt.Sprintf("prepare %s statement", name), err)
		}
		im.stmts[name] = stmt
	}
	im.pending = 0
	return nil
}

func (im *Importer) commitChunk() error {
	for _, stmt := range im.stmts {
		stmt.Close()
	}
	im.stmts = nil
	err := im.tx.Commit()
	im.tx = nil
	return store.Wrap("commit import chunk", err)
}

func (im *Importer) insert(name string, args ...any) (int64, error) {
	res, err := im.stmts[name].ExecContext(im.ctx, args...)
	if err != nil {
		return 0, store.Wrap("insert "+name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, store.Wrap("insert "+name, err)
	}
	return id, nil
}

// Write stores one record.
func (im *Importer) Write(rec *core.EvidenceRecord) error {
	if im.tx == nil {
		return fmt.Errorf("importer is closed")
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	sourceID, err := im.ensureSource(rec.Source, rec.SourceGroup)
	if err != nil {
		return err
	}
	spectrumID, err := im.ensureSpectrum(sourceID, rec)
	if err != nil {
		return err
	}
	peptideID, err := im.ensurePeptide(rec.Sequence)
	if err != nil {
		return err
	}
	for i := range rec.Proteins {
		if err := im.ensureInstance(&rec.Proteins[i], peptideID, len(rec.Sequence)); err != nil {
			return err
		}
	}
	if err := im.insertPSM(spectrumID, peptideID, rec); err != nil {
		return err
	}

	im.stats.Records++
	im.pending++
	if im.pending >= im.chunkSize {
		if err := im.commitChunk(); err != nil {
			return err
		}
		return im.beginChunk()
	}
	return nil
}

// groupAncestors expands "/a/b" to ["/", "/a", "/a/b"].
func groupAncestors(group string) []string {
	group = "/" + strings.Trim(group, "/")
	out := []string{"/"}
	if group == "/" {
		return out
	}
	parts := strings.Split(strings.TrimPrefix(group, "/"), "/")
	for i := range parts {
		out = append(out, "/"+strings.Join(parts[:i+1], "/"))
	}
	return out
}

func (im *Importer) ensureGroup(name string) (int64, error) {
	if id, ok := im.groups[name]; ok {
		return id, nil
	}
	id, err := im.insert("group", name)
	if err != nil {
		return 0, err
	}
	im.groups[name] = id
	im.stats.SourceGroups++
	return id, nil
}

// ensureSource creates the source and links it to its group and every
// ancestor group, so scoping by "/tissue" includes "/tissue/A".
func (im *Importer) ensureSource(name, group string) (int64, error) {
	if id, ok := im.sources[name]; ok {
		return id, nil
	}
	ancestors := groupAncestors(group)
	groupIDs := make([]int64, len(ancestors))
	for i, g := range ancestors {
		id, err := im.ensureGroup(g)
		if err != nil {
			return 0, err
		}
		groupIDs[i] = id
	}

	id, err := im.insert("source", name, "", groupIDs[len(groupIDs)-1])
	if err != nil {
		return 0, err
	}
	for _, g := range groupIDs {
		if _, err := im.insert("link", id, g); err != nil {
			return 0, err
		}
	}
	im.sources[name] = id
	im.stats.Sources++
	return id, nil
}

func (im *Importer) ensureSpectrum(sourceID int64, rec *core.EvidenceRecord) (int64, error) {
	key := spectrumKey{source: sourceID, nativeID: rec.NativeID}
	if id, ok := im.spectra[key]; ok {
		return id, nil
	}
	id, err := im.insert("spectrum", sourceID, rec.SpectrumIndex, rec.NativeID, rec.PrecursorMZ)
	if err != nil {
		return 0, err
	}
	im.spectra[key] = id
	im.stats.Spectra++
	return id, nil
}

func (im *Importer) ensurePeptide(sequence string) (int64, error) {
	if id, ok := im.peptides[sequence]; ok {
		return id, nil
	}
	id, err := im.insert("peptide", sequence,
		core.CalculateNeutralMass(sequence, nil),
		core.CalculateMolecularWeight(sequence, nil))
	if err != nil {
		return 0, err
	}
	im.peptides[sequence] = id
	im.stats.Peptides++
	return id, nil
}

func (im *Importer) ensureProtein(occ *core.ProteinOccurrence) (int64, error) {
	if id, ok := im.proteins[occ.Accession]; ok {
		return id, nil
	}
	id, err := im.insert("protein", occ.Accession, occ.Description, occ.Sequence)
	if err != nil {
		return 0, err
	}
	im.proteins[occ.Accession] = id
	im.stats.Proteins++
	return id, nil
}

func (im *Importer) ensureInstance(occ *core.ProteinOccurrence, peptideID int64, length int) error {
	proteinID, err := im.ensureProtein(occ)
	if err != nil {
		return err
	}
	key := instanceKey{protein: proteinID, peptide: peptideID, offset: occ.Offset}
	if im.instances[key] {
		return nil
	}

	instance := core.PeptideInstance{
		Protein:             proteinID,
		Peptide:             peptideID,
		Offset:              occ.Offset,
		Length:              length,
		NTerminusIsSpecific: occ.NTerminusIsSpecific,
		CTerminusIsSpecific: occ.CTerminusIsSpecific,
		MissedCleavages:     occ.MissedCleavages,
	}
	protein := core.Protein{Accession: occ.Accession, Sequence: occ.Sequence}
	if err := instance.Validate(&protein); err != nil {
		return fmt.Errorf("protein %s: %w", occ.Accession, err)
	}

	if _, err := im.insert("instance", instance.Protein, instance.Peptide, instance.Offset, instance.Length,
		instance.NTerminusIsSpecific, instance.CTerminusIsSpecific, instance.MissedCleavages); err != nil {
		return err
	}
	im.instances[key] = true
	im.stats.PeptideInstances++
	return nil
}

func (im *Importer) ensureModification(mod core.Modification) (int64, error) {
	key := modificationKey{name: mod.Name, mass: core.RoundFloat(mod.MonoMassDelta, 6)}
	if id, ok := im.modifications[key]; ok {
		return id, nil
	}
	id, err := im.insert("modification", mod.MonoMassDelta, mod.AvgMassDelta, mod.Name)
	if err != nil {
		return 0, err
	}
	im.modifications[key] = id
	im.stats.Modifications++
	return id, nil
}

func (im *Importer) insertPSM(spectrumID, peptideID int64, rec *core.EvidenceRecord) error {
	psm := core.PeptideSpectrumMatch{
		Spectrum:         spectrumID,
		Analysis:         defaultAnalysis,
		Peptide:          peptideID,
		QValue:           rec.QValue,
		MonoisotopicMass: core.CalculateNeutralMass(rec.Sequence, rec.Modifications),
		MolecularWeight:  core.CalculateMolecularWeight(rec.Sequence, rec.Modifications),
		Rank:             rec.Rank,
		Charge:           rec.Charge,
		Modifications:    rec.Modifications,
	}
	if rec.PrecursorMZ > 0 {
		observed := core.NeutralMassFromMZ(rec.PrecursorMZ, rec.Charge)
		psm.MonoisotopicMassError = observed - psm.MonoisotopicMass
		psm.MolecularWeightError = observed - psm.MolecularWeight
	}
	if err := psm.Validate(); err != nil {
		return err
	}

	psmID, err := im.insert("psm", psm.Spectrum, psm.Analysis, psm.Peptide, psm.QValue,
		psm.MonoisotopicMass, psm.MolecularWeight, psm.MonoisotopicMassError, psm.MolecularWeightError,
		psm.Rank, psm.Charge)
	if err != nil {
		return err
	}
	im.stats.PSMs++

	for _, pm := range psm.Modifications {
		modID, err := im.ensureModification(pm.Modification)
		if err != nil {
			return err
		}
		if _, err := im.insert("peptideMod", psmID, modID, pm.Offset, string(pm.Site)); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the counts written so far.
func (im *Importer) Stats() ImportStats {
	return im.stats
}

// Finalize commits the last chunk. The importer cannot be used afterwards.
func (im *Importer) Finalize() error {
	if im.tx == nil {
		return nil
	}
	return im.commitChunk()
}

// Close abandons the uncommitted chunk, if any.
func (im *Importer) Close() error {
	if im.tx == nil {
		return nil
	}
	for _, stmt := range im.stmts {
		stmt.Close()
	}
	err := im.tx.Rollback()
	im.tx = nil
	return store.Wrap("rollback import chunk", err)
}
