package core

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ModDatabase stores modification definitions
type ModDatabase struct {
	mods map[string]Modification // name -> definition
}

// NewModDatabase creates an empty modification database
func NewModDatabase() *ModDatabase {
	return &ModDatabase{
		mods: make(map[string]Modification),
	}
}

// LoadFromCSV loads modifications from a CSV file (format: mod,monoshift[,avgshift])
func (db *ModDatabase) LoadFromCSV(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	// Skip header line
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return fmt.Errorf("line %d: invalid format, expected at least 2 comma-separated fields", lineNum)
		}

		modName := strings.TrimSpace(parts[0])
		massStr := strings.TrimSpace(parts[1])

		mass, err := strconv.ParseFloat(massStr, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid mass value '%s': %w", lineNum, massStr, err)
		}

		avg := mass
		if len(parts) >= 3 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64); err == nil {
				avg = v
			}
		}

		db.Add(modName, mass, avg)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading CSV: %w", err)
	}

	return nil
}

// Get returns the modification definition for a name
func (db *ModDatabase) Get(name string) (Modification, bool) {
	mod, ok := db.mods[name]
	return mod, ok
}

// Add adds or updates a modification
func (db *ModDatabase) Add(name string, mono, avg float64) {
	db.mods[name] = Modification{Name: name, MonoMassDelta: mono, AvgMassDelta: avg}
}

// Len returns the number of known modifications.
func (db *ModDatabase) Len() int {
	return len(db.mods)
}

// ParseModString parses a modification string like "57.021464@2;15.994915@8" or
// "Carbamidomethyl@C2;Oxidation@M8". Positions are 1-based residues; "n"/0 is the
// N-terminus and "c" the C-terminus.
func (db *ModDatabase) ParseModString(modStr string, sequence string) ([]PeptideModification, error) {
	if modStr == "" {
		return nil, nil
	}

	var mods []PeptideModification
	for _, part := range strings.Split(modStr, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		atParts := strings.Split(part, "@")
		if len(atParts) != 2 {
			return nil, fmt.Errorf("invalid modification format '%s', expected 'name@position' or 'mass@position'", part)
		}

		nameOrMass := strings.TrimSpace(atParts[0])
		posStr := strings.TrimSpace(atParts[1])

		var mod Modification
		if mass, err := strconv.ParseFloat(nameOrMass, 64); err == nil {
			mod = Modification{Name: nameOrMass, MonoMassDelta: mass, AvgMassDelta: mass}
		} else {
			var ok bool
			mod, ok = db.Get(nameOrMass)
			if !ok {
				return nil, fmt.Errorf("unknown modification '%s'", nameOrMass)
			}
		}

		offset, err := parsePosition(posStr, sequence)
		if err != nil {
			return nil, fmt.Errorf("invalid position '%s': %w", posStr, err)
		}

		mods = append(mods, PeptideModification{
			Modification: mod,
			Offset:       offset,
			Site:         SiteAt(sequence, offset),
		})
	}

	return mods, nil
}

// SiteAt returns the residue letter modified at offset, '(' for the N-terminus
// and ')' for the C-terminus.
func SiteAt(sequence string, offset int) byte {
	switch {
	case offset < 0:
		return '('
	case offset >= len(sequence):
		return ')'
	default:
		return sequence[offset]
	}
}

// parsePosition parses a position string that may be just a number or include an amino acid
// Examples: "2", "C2", "n", "c"
func parsePosition(posStr string, sequence string) (int, error) {
	switch strings.ToLower(posStr) {
	case "n", "0":
		return -1, nil
	case "c":
		return len(sequence), nil
	}

	// Remove leading amino acid letter if present
	digits := strings.TrimLeft(posStr, "ACDEFGHIKLMNPQRSTVWY")

	pos, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("invalid position number: %w", err)
	}
	if pos < 1 || pos > len(sequence) {
		return 0, fmt.Errorf("position %d outside peptide of length %d", pos, len(sequence))
	}
	if digits != posStr && sequence[pos-1] != posStr[0] {
		return 0, fmt.Errorf("residue %c does not match %c at position %d", posStr[0], sequence[pos-1], pos)
	}

	return pos - 1, nil
}

// DefaultModDatabase returns a ModDatabase pre-loaded with common modifications
func DefaultModDatabase() *ModDatabase {
	db := NewModDatabase()

	// Common modifications from unimod (monoisotopic, average)
	db.Add("Acetyl", 42.010565, 42.0367)
	db.Add("Amidated", -0.984016, -0.9848)
	db.Add("Carbamidomethyl", 57.021464, 57.0513)
	db.Add("Carbamyl", 43.005814, 43.0247)
	db.Add("Deamidated", 0.984016, 0.9848)
	db.Add("Phospho", 79.966331, 79.9799)
	db.Add("Dehydrated", -18.010565, -18.0153)
	db.Add("Glu->pyro-Glu", -18.010565, -18.0153)
	db.Add("Gln->pyro-Glu", -17.026549, -17.0305)
	db.Add("Methyl", 14.01565, 14.0266)
	db.Add("Oxidation", 15.994915, 15.9994)
	db.Add("Dimethyl", 28.0313, 28.0532)
	db.Add("Trimethyl", 42.04695, 42.0797)
	db.Add("GlyGly", 114.042927, 114.1026)
	db.Add("HexNAc", 203.079373, 203.1925)
	db.Add("TMT6plex", 229.162932, 229.2634)
	db.Add("TMTPro", 304.207146, 304.3127)
	db.Add("iTRAQ4plex", 144.102063, 144.1544)
	db.Add("iTRAQ8plex", 304.205360, 304.3081)

	return db
}
