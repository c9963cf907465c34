package dto

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

// Layout describes a warehouse for the setup tooling.
//
//	zones:
//	  - name: AMB
//	    zone_code: ambient
//	    aisles: 12
//	    bays_per_aisle: 8
//	    shelves_per_bay: 5
type Layout struct {
	Zones []ZoneLayout `yaml:"zones"`
}

type ZoneLayout struct {
	Name          string         `yaml:"name"`
	ZoneCode      model.ZoneCode `yaml:"zone_code"`
	Aisles        int            `yaml:"aisles"`
	BaysPerAisle  int            `yaml:"bays_per_aisle"`
	ShelvesPerBay int            `yaml:"shelves_per_bay"`
}

func ParseLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}
	return ParseLayout(data)
}

func (l *Layout) Validate() error {
	if len(l.Zones) == 0 {
		return fmt.Errorf("%w: layout has no zones", model.ErrValidation)
	}
	seen := map[string]bool{}
	for _, z := range l.Zones {
		if z.Name == "" {
			return fmt.Errorf("%w: zone without name", model.ErrValidation)
		}
		if seen[z.Name] {
			return fmt.Errorf("%w: zone %q listed twice", model.ErrValidation, z.Name)
		}
		seen[z.Name] = true
		if !z.ZoneCode.Valid() {
			return fmt.Errorf("%w: zone %q has unknown zone_code %q", model.ErrValidation, z.Name, z.ZoneCode)
		}
		if z.Aisles <= 0 || z.BaysPerAisle <= 0 || z.ShelvesPerBay <= 0 {
			return fmt.Errorf("%w: zone %q needs positive aisle, bay and shelf counts", model.ErrValidation, z.Name)
		}
	}
	return nil
}
