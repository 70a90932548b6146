package profile

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type fileLayout struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadFile reads profiles from a YAML document of the form `profiles: [...]`.
func LoadFile(path string) ([]Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read profiles file %s", path)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML profiles document.
func Parse(raw []byte) ([]Profile, error) {
	var layout fileLayout
	if err := yaml.Unmarshal(raw, &layout); err != nil {
		return nil, errors.Wrap(err, "decode profiles")
	}
	if len(layout.Profiles) == 0 {
		return nil, errors.New("profiles file declares no profiles")
	}

	seen := make(map[string]struct{}, len(layout.Profiles))
	out := make([]Profile, 0, len(layout.Profiles))
	for i, p := range layout.Profiles {
		p.ID = strings.TrimSpace(p.ID)
		p.StorageKey = strings.TrimSpace(p.StorageKey)
		switch {
		case p.ID == "":
			return nil, errors.Errorf("profile #%d: id is required", i)
		case p.StorageKey == "":
			return nil, errors.Errorf("profile %s: storageKey is required", p.ID)
		case strings.TrimSpace(p.Greeting) == "":
			return nil, errors.Errorf("profile %s: greeting is required", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, errors.Errorf("profile %s declared twice", p.ID)
		}
		seen[p.ID] = struct{}{}

		if p.HistoryWindow <= 0 {
			p.HistoryWindow = DefaultHistoryWindow
		}
		out = append(out, p)
	}
	return out, nil
}
