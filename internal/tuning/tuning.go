package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz          int     `yaml:"tick_rate_hz"`
	WorksetBudget       int     `yaml:"workset_budget"`
	PropagationRadius   int     `yaml:"propagation_radius"`
	LivelinessThreshold float64 `yaml:"liveliness_threshold"`
	ChunkBatchCap       int     `yaml:"chunk_batch_cap"`
	MissingPageSize     int     `yaml:"missing_page_size"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:     "1.0",
		TickRateHz:          20,
		WorksetBudget:       256,
		PropagationRadius:   32,
		LivelinessThreshold: 0.8,
		ChunkBatchCap:       64,
		MissingPageSize:     512,
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be positive")
	}
	if t.WorksetBudget <= 0 {
		return fmt.Errorf("workset_budget must be positive")
	}
	if t.PropagationRadius <= 0 {
		return fmt.Errorf("propagation_radius must be positive")
	}
	if t.LivelinessThreshold <= 0 || t.LivelinessThreshold > 1 {
		return fmt.Errorf("liveliness_threshold must be in (0,1]")
	}
	if t.ChunkBatchCap <= 0 {
		return fmt.Errorf("chunk_batch_cap must be positive")
	}
	if t.MissingPageSize <= 0 {
		return fmt.Errorf("missing_page_size must be positive")
	}
	return nil
}
