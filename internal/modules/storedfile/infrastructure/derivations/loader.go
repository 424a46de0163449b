package derivations

import (
	"bytes"
	"fmt"
	"os"

	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
	"gopkg.in/yaml.v3"
)

type file struct {
	Derivations []domain.DerivationType `yaml:"derivations"`
}

// Load reads derivation rules from a YAML file. An empty path yields the
// built-in thumbnail rule.
func Load(path string) (*domain.Registry, error) {
	if path == "" {
		return domain.NewRegistry(domain.DefaultDerivationTypes())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read derivations file: %w", err)
	}
	return Parse(b)
}

// Parse builds a registry from YAML such as:
//
//	derivations:
//	  - value: 0
//	    name: THUMBNAIL
//	    mode: IMMEDIATELY
//	    operations:
//	      - operation: resize
//	        target_size: [50, 50]
//	        resize_mode: CROP
//	        anchor_horizontal: CENTER
//	        anchor_vertical: CENTER
func Parse(b []byte) (*domain.Registry, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDerivations, err)
	}
	if len(f.Derivations) == 0 {
		return nil, fmt.Errorf("%w: no derivations defined", domain.ErrInvalidDerivations)
	}
	return domain.NewRegistry(f.Derivations)
}
