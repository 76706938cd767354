package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/confluence/internal/core"
	"github.com/newthinker/confluence/internal/gate"
	"gopkg.in/yaml.v3"
)

// snapshotRecord is the document form of a Snapshot. created_at is an
// RFC 3339 string; empty means evaluation time.
type snapshotRecord struct {
	Symbol            string                        `yaml:"symbol"`
	Price             float64                       `yaml:"price"`
	CreatedAt         string                        `yaml:"created_at"`
	TimeframeFeatures map[string]map[string]float64 `yaml:"timeframe_features"`
	VolumeFeatures    map[string]float64            `yaml:"volume_features"`
	OrderflowFeatures map[string]float64            `yaml:"orderflow_features"`
	MLProbability     *float64                      `yaml:"ml_probability"`
	OrderflowScore    float64                       `yaml:"orderflow_score"`
	SentimentBias     float64                       `yaml:"sentiment_bias"`
	FeatureOverrides  map[string]float64            `yaml:"feature_overrides"`
	RegimeFeatures    map[string]float64            `yaml:"regime_features"`
	Series            seriesRecord                  `yaml:"series"`
}

type seriesRecord struct {
	Closes  []float64 `yaml:"closes"`
	ATR     []float64 `yaml:"atr"`
	Volumes []float64 `yaml:"volumes"`
}

// LoadSnapshots reads a YAML or JSON list of snapshots
func LoadSnapshots(path string) ([]Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshots: %w", err)
	}
	return DecodeSnapshots(data)
}

// DecodeSnapshots decodes a document whose root is a list of snapshots
func DecodeSnapshots(data []byte) ([]Snapshot, error) {
	var records []snapshotRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding snapshots: %w", err)
	}

	out := make([]Snapshot, 0, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.Symbol) == "" {
			return nil, fmt.Errorf("snapshot %d: symbol is required", i)
		}
		var at time.Time
		if r.CreatedAt != "" {
			t, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("snapshot %d: created_at: %w", i, err)
			}
			at = t
		}
		if r.MLProbability != nil {
			ml := core.Clamp01(*r.MLProbability)
			r.MLProbability = &ml
		}
		out = append(out, Snapshot{
			Gate: gate.Inputs{
				Symbol:            strings.TrimSpace(r.Symbol),
				Price:             r.Price,
				TimeframeFeatures: r.TimeframeFeatures,
				VolumeFeatures:    r.VolumeFeatures,
				OrderflowFeatures: r.OrderflowFeatures,
				MLProbability:     r.MLProbability,
				CreatedAt:         at,
			},
			OrderflowScore:   r.OrderflowScore,
			SentimentBias:    r.SentimentBias,
			FeatureOverrides: r.FeatureOverrides,
			RegimeFeatures:   r.RegimeFeatures,
			Series: Series{
				Closes:  r.Series.Closes,
				ATR:     r.Series.ATR,
				Volumes: r.Series.Volumes,
			},
		})
	}
	return out, nil
}
