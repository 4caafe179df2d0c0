// Package manifest records how an output file was generated so it can be
// reproduced byte for byte.
package manifest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/speedwagon-io/sensorsim/internal/model"
	"github.com/speedwagon-io/sensorsim/internal/serializer"
)

type Manifest struct {
	RunID           string                   `yaml:"run_id"`
	GeneratedAt     time.Time                `yaml:"generated_at"`
	Output          string                   `yaml:"output"`
	Delimiter       string                   `yaml:"delimiter"`
	Seed            *uint64                  `yaml:"seed,omitempty"`
	Steps           int                      `yaml:"steps"`
	IntervalMs      int64                    `yaml:"interval_ms"`
	BaseTimestampMs int64                    `yaml:"base_timestamp_ms"`
	Rows            int                      `yaml:"rows"`
	Levels          map[int]map[string]int   `yaml:"levels,omitempty"`
	Sensors         []model.SensorDefinition `yaml:"sensors"`
}

// PathFor returns the sidecar path of an output file.
func PathFor(output string) string {
	return output + ".manifest.yaml"
}

func Write(path string, m *Manifest) (err error) {
	f, err := serializer.CreateAtomic(path)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Abort()
		}
	}()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err = enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return f.Commit()
}

func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return &m, nil
}
