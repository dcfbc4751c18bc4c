// Package filter implements the protein evidence filter: q-value and count
// thresholds, greedy parsimony ("additional peptides") and clustering of
// proteins that share spectra.
package filter

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// Default threshold values
const (
	DefaultMaximumQValue                       = 0.02
	DefaultMinimumDistinctPeptidesPerProtein   = 2
	DefaultMinimumSpectraPerProtein            = 2
	DefaultMinimumAdditionalPeptidesPerProtein = 1
)

// Config holds the filter parameters of one run. The four thresholds define
// the bulk filter; Scope only narrows read queries.
type Config struct {
	MaximumQValue                       float64 // PSMs with q-value <= this pass
	MinimumDistinctPeptidesPerProtein   int
	MinimumSpectraPerProtein            int
	MinimumAdditionalPeptidesPerProtein int

	Scope store.Scope
}

// Default returns the standard thresholds with no scope.
func Default() Config {
	return Config{
		MaximumQValue:                       DefaultMaximumQValue,
		MinimumDistinctPeptidesPerProtein:   DefaultMinimumDistinctPeptidesPerProtein,
		MinimumSpectraPerProtein:            DefaultMinimumSpectraPerProtein,
		MinimumAdditionalPeptidesPerProtein: DefaultMinimumAdditionalPeptidesPerProtein,
	}
}

// ParameterError reports an unusable filter parameter.
type ParameterError struct {
	Field   string
	Message string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid filter parameter %s: %s", e.Field, e.Message)
}

// Validate checks the thresholds. Every problem is reported, joined.
func (c *Config) Validate() error {
	var errs []error

	if math.IsNaN(c.MaximumQValue) || c.MaximumQValue < 0 || c.MaximumQValue > 1 {
		errs = append(errs, &ParameterError{"MaximumQValue", fmt.Sprintf("%v is outside [0,1]", c.MaximumQValue)})
	}
	if c.MinimumDistinctPeptidesPerProtein < 1 {
		errs = append(errs, &ParameterError{"MinimumDistinctPeptidesPerProtein", fmt.Sprintf("%d is below 1", c.MinimumDistinctPeptidesPerProtein)})
	}
	if c.MinimumSpectraPerProtein < 1 {
		errs = append(errs, &ParameterError{"MinimumSpectraPerProtein", fmt.Sprintf("%d is below 1", c.MinimumSpectraPerProtein)})
	}
	if c.MinimumAdditionalPeptidesPerProtein < 0 {
		errs = append(errs, &ParameterError{"MinimumAdditionalPeptidesPerProtein", fmt.Sprintf("%d is negative", c.MinimumAdditionalPeptidesPerProtein)})
	}

	return errors.Join(errs...)
}

// IsBasic reports whether the config carries only thresholds.
func (c *Config) IsBasic() bool {
	return c.Scope.IsEmpty()
}

// Equal compares thresholds and scope predicates.
func (c *Config) Equal(other *Config) bool {
	if other == nil {
		return false
	}
	return c.MaximumQValue == other.MaximumQValue &&
		c.MinimumDistinctPeptidesPerProtein == other.MinimumDistinctPeptidesPerProtein &&
		c.MinimumSpectraPerProtein == other.MinimumSpectraPerProtein &&
		c.MinimumAdditionalPeptidesPerProtein == other.MinimumAdditionalPeptidesPerProtein &&
		scopeEqual(c.Scope, other.Scope)
}

func scopeEqual(a, b store.Scope) bool {
	eq := func(x, y *int64) bool {
		if x == nil || y == nil {
			return x == y
		}
		return *x == *y
	}
	keyEq := func(x, y *store.DistinctPeptideKey) bool {
		if x == nil || y == nil {
			return x == y
		}
		return x.Peptide == y.Peptide && x.MonoisotopicMass == y.MonoisotopicMass
	}
	return eq(a.Cluster, b.Cluster) && eq(a.Protein, b.Protein) && eq(a.Peptide, b.Peptide) &&
		keyEq(a.DistinctPeptide, b.DistinctPeptide) && slices.Equal(a.Modifications, b.Modifications) &&
		a.ModifiedSite == b.ModifiedSite && eq(a.Spectrum, b.Spectrum) &&
		eq(a.SpectrumSource, b.SpectrumSource) && eq(a.SpectrumSourceGroup, b.SpectrumSourceGroup)
}

// Criteria returns the record persisted next to the filtered view.
func (c *Config) Criteria(runID string, at time.Time) store.FilteringCriteria {
	return store.FilteringCriteria{
		MaximumQValue:                       c.MaximumQValue,
		MinimumDistinctPeptidesPerProtein:   c.MinimumDistinctPeptidesPerProtein,
		MinimumSpectraPerProtein:            c.MinimumSpectraPerProtein,
		MinimumAdditionalPeptidesPerProtein: c.MinimumAdditionalPeptidesPerProtein,
		RunID:                               runID,
		FilteredAt:                          at,
	}
}

// Matches reports whether persisted criteria were produced by these thresholds.
func (c *Config) Matches(crit *store.FilteringCriteria) bool {
	return crit != nil &&
		crit.MaximumQValue == c.MaximumQValue &&
		crit.MinimumDistinctPeptidesPerProtein == c.MinimumDistinctPeptidesPerProtein &&
		crit.MinimumSpectraPerProtein == c.MinimumSpectraPerProtein &&
		crit.MinimumAdditionalPeptidesPerProtein == c.MinimumAdditionalPeptidesPerProtein
}

// String describes the scope when one is set, otherwise the thresholds.
func (c Config) String() string {
	s := c.Scope
	switch {
	case s.Cluster != nil:
		return fmt.Sprintf("Cluster = %d", *s.Cluster)
	case s.Protein != nil:
		return fmt.Sprintf("Protein = %d", *s.Protein)
	case s.Peptide != nil:
		return fmt.Sprintf("Peptide = %d", *s.Peptide)
	case s.DistinctPeptide != nil:
		if s.DistinctPeptide.Sequence != "" {
			return "Interpretation = " + s.DistinctPeptide.Sequence
		}
		return fmt.Sprintf("Interpretation = %d@%.4f", s.DistinctPeptide.Peptide, s.DistinctPeptide.MonoisotopicMass)
	case s.SpectrumSourceGroup != nil:
		return fmt.Sprintf("Group = %d", *s.SpectrumSourceGroup)
	case s.SpectrumSource != nil:
		return fmt.Sprintf("Source = %d", *s.SpectrumSource)
	case s.Spectrum != nil:
		return fmt.Sprintf("Spectrum = %d", *s.Spectrum)
	case s.ModifiedSite == 0 && len(s.Modifications) == 0:
		return fmt.Sprintf("Q-value ≤ %g; Min. distinct peptides per protein ≥ %d; "+
			"Min. spectra per protein ≥ %d; Min. additional peptides per protein ≥ %d",
			c.MaximumQValue,
			c.MinimumDistinctPeptidesPerProtein,
			c.MinimumSpectraPerProtein,
			c.MinimumAdditionalPeptidesPerProtein)
	}

	var parts []string
	if s.ModifiedSite != 0 {
		parts = append(parts, fmt.Sprintf("Modified site: %c", s.ModifiedSite))
	}
	if len(s.Modifications) > 0 {
		ids := make([]string, 0, len(s.Modifications))
		for _, id := range s.Modifications {
			ids = append(ids, fmt.Sprint(id))
		}
		plural := ""
		if len(ids) > 1 {
			plural = "s"
		}
		parts = append(parts, fmt.Sprintf("Modification%s: %s", plural, strings.Join(ids, ",")))
	}
	return strings.Join(parts, "; ")
}
