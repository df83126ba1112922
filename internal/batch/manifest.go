package batch

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Manifest is the YAML shape of a fill manifest: an explicit list of jobs
// to process, used when the operator wants a pass narrower than "every
// matched item".
type Manifest struct {
	FirmID string       `yaml:"firm_id,omitempty"`
	Jobs   []FillTarget `yaml:"jobs"`
}

// LoadManifest reads and validates a fill manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: read manifest")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "batch: parse manifest")
	}
	if len(m.Jobs) == 0 {
		return nil, eris.Errorf("batch: manifest %s lists no jobs", path)
	}
	for i, j := range m.Jobs {
		if j.RequestNo == "" || j.JobNo == "" {
			return nil, eris.Errorf("batch: manifest job %d missing request_no or job_no", i+1)
		}
	}
	return &m, nil
}
