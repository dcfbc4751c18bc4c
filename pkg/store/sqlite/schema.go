package sqlite

import (
	"fmt"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// referenceSchema holds tables shared by every view.
const referenceSchema = `
	CREATE TABLE IF NOT EXISTS SpectrumSourceGroup (
		Id INTEGER PRIMARY KEY,
		Name TEXT UNIQUE
	);

	CREATE TABLE IF NOT EXISTS SpectrumSource (
		Id INTEGER PRIMARY KEY,
		Name TEXT UNIQUE,
		URL TEXT,
		SourceGroup INT REFERENCES SpectrumSourceGroup(Id)
	);

	CREATE TABLE IF NOT EXISTS SpectrumSourceGroupLink (
		Id INTEGER PRIMARY KEY,
		Source INT REFERENCES SpectrumSource(Id),
		SourceGroup INT REFERENCES SpectrumSourceGroup(Id)
	);
	CREATE INDEX IF NOT EXISTS SpectrumSourceGroupLink_SourceIndex ON SpectrumSourceGroupLink (Source);

	CREATE TABLE IF NOT EXISTS Spectrum (
		Id INTEGER PRIMARY KEY,
		Source INT REFERENCES SpectrumSource(Id),
		ScanIndex INT,
		NativeID TEXT,
		PrecursorMZ NUMERIC
	);
	CREATE UNIQUE INDEX IF NOT EXISTS Spectrum_SourceNativeIDIndex ON Spectrum (Source, NativeID);

	CREATE TABLE IF NOT EXISTS Modification (
		Id INTEGER PRIMARY KEY,
		MonoMassDelta NUMERIC,
		AvgMassDelta NUMERIC,
		Name TEXT
	);

	CREATE TABLE IF NOT EXISTS PeptideModification (
		Id INTEGER PRIMARY KEY,
		PeptideSpectrumMatch INT,
		Modification INT REFERENCES Modification(Id),
		Offset INT,
		Site TEXT
	);
	CREATE INDEX IF NOT EXISTS PeptideModification_PSMIndex ON PeptideModification (PeptideSpectrumMatch);
`

// Entity table columns, in insert/select order.
var entityColumns = map[string]string{
	"Protein":              "Id, Accession, Description, Sequence",
	"PeptideInstance":      "Id, Protein, Peptide, Offset, Length, NTerminusIsSpecific, CTerminusIsSpecific, MissedCleavages",
	"Peptide":              "Id, Sequence, MonoisotopicMass, MolecularWeight",
	"PeptideSpectrumMatch": "Id, Spectrum, Analysis, Peptide, QValue, MonoisotopicMass, MolecularWeight, MonoisotopicMassError, MolecularWeightError, Rank, Charge",
}

// entityTables returns the CREATE TABLE statements of one view.
func entityTables(v store.View) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
			Id INTEGER PRIMARY KEY,
			Accession TEXT,
			Description TEXT,
			Sequence TEXT
		)`, v.Table("Protein")),
		fmt.Sprintf(`CREATE TABLE %s (
			Id INTEGER PRIMARY KEY,
			Protein INT,
			Peptide INT,
			Offset INT,
			Length INT,
			NTerminusIsSpecific INT,
			CTerminusIsSpecific INT,
			MissedCleavages INT
		)`, v.Table("PeptideInstance")),
		fmt.Sprintf(`CREATE TABLE %s (
			Id INTEGER PRIMARY KEY,
			Sequence TEXT,
			MonoisotopicMass NUMERIC,
			MolecularWeight NUMERIC
		)`, v.Table("Peptide")),
		fmt.Sprintf(`CREATE TABLE %s (
			Id INTEGER PRIMARY KEY,
			Spectrum INT,
			Analysis INT,
			Peptide INT,
			QValue NUMERIC,
			MonoisotopicMass NUMERIC,
			MolecularWeight NUMERIC,
			MonoisotopicMassError NUMERIC,
			MolecularWeightError NUMERIC,
			Rank INT,
			Charge INT
		)`, v.Table("PeptideSpectrumMatch")),
	}
}

// entityIndexes returns the lookup indexes of one view. Index names carry
// the view prefix; dropping a view's tables drops its indexes.
func entityIndexes(v store.View) []string {
	pi := v.Table("PeptideInstance")
	psm := v.Table("PeptideSpectrumMatch")
	pep := v.Table("Peptide")
	return []string{
		fmt.Sprintf("CREATE INDEX %s_ProteinIndex ON %s (Protein)", pi, pi),
		fmt.Sprintf("CREATE INDEX %s_PeptideIndex ON %s (Peptide)", pi, pi),
		fmt.Sprintf("CREATE UNIQUE INDEX %s_SequenceIndex ON %s (Sequence)", pep, pep),
		fmt.Sprintf("CREATE INDEX %s_SpectrumIndex ON %s (Spectrum)", psm, psm),
		fmt.Sprintf("CREATE INDEX %s_PeptideIndex ON %s (Peptide)", psm, psm),
		fmt.Sprintf("CREATE INDEX %s_QValueIndex ON %s (QValue)", psm, psm),
	}
}
