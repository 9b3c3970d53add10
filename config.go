package metrictree

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PivotMode controls where each internal node gets its pivots from.
type PivotMode string

const (
	// PivotModeLocal selects pivots from the node's own partition.
	PivotModeLocal PivotMode = "local"
	// PivotModeGlobal selects one pivot set from the whole dataset at the
	// root (or takes the set given by WithGlobalPivots) and reuses it at
	// every level.
	PivotModeGlobal PivotMode = "global"
	// PivotModeMix samples a candidate pool once from the whole dataset and
	// re-evaluates it against each node's partition.
	PivotModeMix PivotMode = "mix"
)

// PartitionRule selects how remaining items are routed to children.
type PartitionRule string

const (
	// RuleNearestPivot routes each item to its nearest pivot (P children).
	RuleNearestPivot PartitionRule = "nearest_pivot"
	// RuleBallMedian splits on the median distance to each pivot (2^P children).
	RuleBallMedian PartitionRule = "ball_median"
	// RuleSignPattern routes by the signs of d(x,p1)-d(x,pi) (2^(P-1) children).
	RuleSignPattern PartitionRule = "sign_pattern"
	// RulePivotSpaceGrid splits each pivot-space axis at its middle element
	// (2^P children).
	RulePivotSpaceGrid PartitionRule = "pivot_space_grid"
	// RuleCluster runs k-means in pivot space (Clusters children).
	RuleCluster PartitionRule = "cluster"
)

// SelectionMethod names a pivot selection algorithm.
type SelectionMethod string

const (
	SelectRandom    SelectionMethod = "random"
	SelectFFT       SelectionMethod = "fft"
	SelectMaxSpread SelectionMethod = "max_spread"
	SelectPCA       SelectionMethod = "pca"
	SelectPAM       SelectionMethod = "pam"
	SelectCLARA     SelectionMethod = "clara"
)

// Config controls tree construction.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// PivotCount is the number of pivots per internal node (P).
	// Must be >= 1; nearest_pivot and sign_pattern need >= 2. Default: 2.
	PivotCount int `yaml:"pivot_count" json:"pivot_count"`

	// MaxLeafSize is the largest partition turned into a leaf without a
	// forced split. Must be >= 1. Default: 16.
	MaxLeafSize int `yaml:"max_leaf_size" json:"max_leaf_size"`

	// MinHeight forces splitting of small partitions until this depth is
	// reached, as long as more than PivotCount items remain. Default: 0.
	MinHeight int `yaml:"min_height" json:"min_height"`

	// MaxHeight forces a leaf at this depth regardless of size.
	// 0 means unlimited. Must be 0 or >= MinHeight. Default: 0.
	MaxHeight int `yaml:"max_height" json:"max_height"`

	// PivotMode is one of "local", "global", "mix". Default: "local".
	PivotMode PivotMode `yaml:"pivot_mode" json:"pivot_mode"`

	// Partition is the partition rule. Default: "nearest_pivot".
	Partition PartitionRule `yaml:"partition" json:"partition"`

	// Selection is the pivot selection method. Default: "fft".
	Selection SelectionMethod `yaml:"selection" json:"selection"`

	// Seed drives every random choice made during a build. Two builds with
	// the same data, config and seed produce the same tree. Default: 1.
	Seed uint64 `yaml:"seed" json:"seed"`

	// SampleSize is the size of the candidate pool drawn once in mix mode.
	// Default: 64.
	SampleSize int `yaml:"sample_size" json:"sample_size"`

	// Clusters is the number of children produced by the cluster rule.
	// Must be >= 2 when Partition is "cluster". Default: 4.
	Clusters int `yaml:"clusters" json:"clusters"`

	// KMeansIterations bounds the k-means refinement of the cluster rule.
	// Default: 10.
	KMeansIterations int `yaml:"kmeans_iterations" json:"kmeans_iterations"`

	// PCAScale is how many candidates per requested pivot survive the
	// farthest-first pre-filter of the PCA selector. Default: 10.
	PCAScale int `yaml:"pca_scale" json:"pca_scale"`

	// SpreadPairs is the number of evaluation pairs used by max_spread.
	// Default: 50.
	SpreadPairs int `yaml:"spread_pairs" json:"spread_pairs"`

	// SpreadCandidates is the number of candidates tried per pivot slot by
	// max_spread. Default: 50.
	SpreadCandidates int `yaml:"spread_candidates" json:"spread_candidates"`

	// ClaraSampleSize is the sample size of each CLARA round. Default: 50.
	ClaraSampleSize int `yaml:"clara_sample_size" json:"clara_sample_size"`

	// ClaraSamples is the number of CLARA rounds. Default: 20.
	ClaraSamples int `yaml:"clara_samples" json:"clara_samples"`

	// Workers bounds the goroutines used to build sibling subtrees and to
	// fill distance matrices. 1 builds sequentially. Default: 1.
	Workers int `yaml:"workers" json:"workers"`
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		PivotCount:       2,
		MaxLeafSize:      16,
		PivotMode:        PivotModeLocal,
		Partition:        RuleNearestPivot,
		Selection:        SelectFFT,
		Seed:             1,
		SampleSize:       64,
		Clusters:         4,
		KMeansIterations: 10,
		PCAScale:         10,
		SpreadPairs:      50,
		SpreadCandidates: 50,
		ClaraSampleSize:  50,
		ClaraSamples:     20,
		Workers:          1,
	}
}

// LoadConfig reads a YAML config file. Missing fields take their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("metrictree: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML config document, fills defaults and validates
// the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("metrictree: parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	if cfg.PivotCount < 1 {
		return fmt.Errorf("%w: PivotCount must be >= 1, got %d", ErrInvalidConfig, cfg.PivotCount)
	}
	if cfg.MaxLeafSize < 1 {
		return fmt.Errorf("%w: MaxLeafSize must be >= 1, got %d", ErrInvalidConfig, cfg.MaxLeafSize)
	}
	if cfg.MinHeight < 0 {
		return fmt.Errorf("%w: MinHeight must be >= 0, got %d", ErrInvalidConfig, cfg.MinHeight)
	}
	if cfg.MaxHeight < 0 || (cfg.MaxHeight > 0 && cfg.MaxHeight < cfg.MinHeight) {
		return fmt.Errorf("%w: MaxHeight must be 0 or >= MinHeight (%d), got %d", ErrInvalidConfig, cfg.MinHeight, cfg.MaxHeight)
	}
	switch cfg.PivotMode {
	case PivotModeLocal, PivotModeGlobal, PivotModeMix:
	default:
		return fmt.Errorf("%w: invalid PivotMode %q", ErrInvalidConfig, cfg.PivotMode)
	}
	switch cfg.Selection {
	case SelectRandom, SelectFFT, SelectMaxSpread, SelectPCA, SelectPAM, SelectCLARA:
	default:
		return fmt.Errorf("%w: invalid Selection %q", ErrInvalidConfig, cfg.Selection)
	}
	switch cfg.Partition {
	case RuleNearestPivot, RuleSignPattern:
		if cfg.PivotCount < 2 {
			return fmt.Errorf("%w: %w: %s needs PivotCount >= 2, got %d", ErrInvalidConfig, ErrIncompatibleRule, cfg.Partition, cfg.PivotCount)
		}
	case RuleBallMedian, RulePivotSpaceGrid:
		if cfg.PivotCount > 20 {
			return fmt.Errorf("%w: %w: %s fans out 2^PivotCount children, PivotCount must be <= 20, got %d",
				ErrInvalidConfig, ErrIncompatibleRule, cfg.Partition, cfg.PivotCount)
		}
	case RuleCluster:
		if cfg.Clusters < 2 {
			return fmt.Errorf("%w: %w: cluster rule needs Clusters >= 2, got %d", ErrInvalidConfig, ErrIncompatibleRule, cfg.Clusters)
		}
	default:
		return fmt.Errorf("%w: invalid Partition %q", ErrInvalidConfig, cfg.Partition)
	}
	if cfg.SampleSize < cfg.PivotCount && cfg.PivotMode == PivotModeMix {
		return fmt.Errorf("%w: SampleSize must be >= PivotCount in mix mode, got %d", ErrInvalidConfig, cfg.SampleSize)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("%w: Workers must be >= 1, got %d", ErrInvalidConfig, cfg.Workers)
	}
	return nil
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	d := DefaultConfig()
	if cfg.PivotMode == "" {
		cfg.PivotMode = d.PivotMode
	}
	if cfg.Partition == "" {
		cfg.Partition = d.Partition
	}
	if cfg.Selection == "" {
		cfg.Selection = d.Selection
	}
	if cfg.SampleSize == 0 {
		cfg.SampleSize = d.SampleSize
	}
	if cfg.Clusters == 0 {
		cfg.Clusters = d.Clusters
	}
	if cfg.KMeansIterations <= 0 {
		cfg.KMeansIterations = d.KMeansIterations
	}
	if cfg.PCAScale <= 0 {
		cfg.PCAScale = d.PCAScale
	}
	if cfg.SpreadPairs <= 0 {
		cfg.SpreadPairs = d.SpreadPairs
	}
	if cfg.SpreadCandidates <= 0 {
		cfg.SpreadCandidates = d.SpreadCandidates
	}
	if cfg.ClaraSampleSize <= 0 {
		cfg.ClaraSampleSize = d.ClaraSampleSize
	}
	if cfg.ClaraSamples <= 0 {
		cfg.ClaraSamples = d.ClaraSamples
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
}
