package filter

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(c *Config)
		wantFields []string
	}{
		{
			name:   "defaults",
			mutate: func(c *Config) {},
		},
		{
			name:   "q-value at bounds",
			mutate: func(c *Config) { c.MaximumQValue = 1 },
		},
		{
			name:   "zero additional peptides allowed",
			mutate: func(c *Config) { c.MinimumAdditionalPeptidesPerProtein = 0 },
		},
		{
			name:       "q-value above one",
			mutate:     func(c *Config) { c.MaximumQValue = 1.01 },
			wantFields: []string{"MaximumQValue"},
		},
		{
			name:       "NaN q-value",
			mutate:     func(c *Config) { c.MaximumQValue = math.NaN() },
			wantFields: []string{"MaximumQValue"},
		},
		{
			name: "several problems",
			mutate: func(c *Config) {
				c.MaximumQValue = -0.1
				c.MinimumDistinctPeptidesPerProtein = 0
				c.MinimumSpectraPerProtein = -1
				c.MinimumAdditionalPeptidesPerProtein = -2
			},
			wantFields: []string{
				"MaximumQValue",
				"MinimumDistinctPeptidesPerProtein",
				"MinimumSpectraPerProtein",
				"MinimumAdditionalPeptidesPerProtein",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			var perr *ParameterError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParameterError, got %T", err)
			}
			for _, field := range tt.wantFields {
				if !strings.Contains(err.Error(), field) {
					t.Errorf("error %q does not mention %s", err, field)
				}
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	cfg := Default()
	want := "Q-value ≤ 0.02; Min. distinct peptides per protein ≥ 2; " +
		"Min. spectra per protein ≥ 2; Min. additional peptides per protein ≥ 1"
	if got := cfg.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	scoped := Default()
	scoped.Scope.Cluster = store.ID(7)
	if got := scoped.String(); got != "Cluster = 7" {
		t.Errorf("String() = %q", got)
	}

	mods := Default()
	mods.Scope.ModifiedSite = 'M'
	mods.Scope.Modifications = []int64{1, 4}
	if got := mods.String(); got != "Modified site: M; Modifications: 1,4" {
		t.Errorf("String() = %q", got)
	}
}

func TestConfigEqual(t *testing.T) {
	a := Default()
	b := Default()
	if !a.Equal(&b) {
		t.Error("defaults should be equal")
	}
	if !a.IsBasic() {
		t.Error("defaults should be a basic filter")
	}

	b.Scope.Protein = store.ID(3)
	if a.Equal(&b) {
		t.Error("scope difference should make configs unequal")
	}
	a.Scope.Protein = store.ID(3)
	if !a.Equal(&b) {
		t.Error("equal scope values behind different pointers should compare equal")
	}
	if a.Equal(nil) {
		t.Error("nil should not be equal")
	}
}

func TestConfigCriteria(t *testing.T) {
	cfg := Default()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	crit := cfg.Criteria("run-1", at)
	if !cfg.Matches(&crit) {
		t.Error("criteria should match the config that produced them")
	}

	other := cfg
	other.MinimumSpectraPerProtein = 5
	if other.Matches(&crit) {
		t.Error("criteria should not match different thresholds")
	}
	if cfg.Matches(nil) {
		t.Error("nil criteria never match")
	}
}
