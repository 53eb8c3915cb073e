package engine

import (
	"fmt"
	"math"

	"github.com/grafana/flametrace/pkg/labels"
	"github.com/grafana/flametrace/pkg/stack"
	"github.com/grafana/flametrace/pkg/stats"
)

// Views selects the derived structures an analysis produces.
type Views struct {
	Merged     bool `yaml:"merged"`
	PerCPU     bool `yaml:"per_cpu"`
	Memory     bool `yaml:"memory"`
	Throughput bool `yaml:"throughput"`
	Markers    bool `yaml:"markers"`
}

type Config struct {
	DepthMode         string  `yaml:"depth_mode"`
	Prune             bool    `yaml:"prune"`
	RecomputeSelfTime bool    `yaml:"recompute_self_time"`
	Rebase            bool    `yaml:"rebase"`
	LabelThreshold    float64 `yaml:"label_threshold"`
	VerticalCutoff    int64   `yaml:"vertical_cutoff"`
	MarkerLabels      bool    `yaml:"marker_labels"`
	StackLabels       bool    `yaml:"stack_labels"`
	ExcludeCPUs       []int   `yaml:"exclude_cpus"`
	CPUFrequency      float64 `yaml:"cpu_frequency"`
	Views             Views   `yaml:"views"`
}

func DefaultConfig() Config {
	return Config{
		DepthMode:      string(stack.ModeAuto),
		Prune:          true,
		LabelThreshold: labels.DefaultThresholdFraction,
		VerticalCutoff: labels.DefaultVerticalCutoff,
		StackLabels:    true,
		CPUFrequency:   stats.DefaultCPUFrequency,
		Views: Views{
			Merged:     true,
			Memory:     true,
			Throughput: true,
		},
	}
}

func (cfg *Config) Validate() error {
	if _, err := stack.ParseMode(cfg.DepthMode); err != nil {
		return err
	}
	if math.IsNaN(cfg.LabelThreshold) || cfg.LabelThreshold < 0 {
		return fmt.Errorf("label threshold must be a non-negative fraction, got %v", cfg.LabelThreshold)
	}
	if cfg.VerticalCutoff < 0 {
		return fmt.Errorf("vertical cutoff must not be negative, got %d", cfg.VerticalCutoff)
	}
	if math.IsNaN(cfg.CPUFrequency) || cfg.CPUFrequency <= 0 {
		return fmt.Errorf("cpu frequency must be positive, got %v", cfg.CPUFrequency)
	}
	return nil
}
