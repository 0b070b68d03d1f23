package infra

import (
	"os"
	"time"

	"security-gateway/middleware/ratelimit/domain"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

// Formato do arquivo:
//
//	version: "2026-10-01"
//	classes:
//	  - name: default
//	    interval: 1m
//	    maxRequests: 60
//	  - name: api:auth
//	    interval: 15m
//	    maxRequests: 5
//	    blockDuration: 15m
type registryFile struct {
	Version string      `json:"version"`
	Classes []classFile `json:"classes"`
}

type classFile struct {
	Name          string `json:"name"`
	Interval      string `json:"interval"`
	MaxRequests   int    `json:"maxRequests"`
	BlockDuration string `json:"blockDuration,omitempty"`
}

// ParseRegistry lê um registry versionado em YAML (ou JSON).
func ParseRegistry(data []byte) (*domain.Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "ratelimit: parse registry")
	}
	if f.Version == "" {
		return nil, errors.New("ratelimit: registry version is required")
	}

	classes := make([]domain.LimitClass, 0, len(f.Classes))
	for _, c := range f.Classes {
		interval, err := time.ParseDuration(c.Interval)
		if err != nil {
			return nil, errors.Wrapf(err, "ratelimit: class %s interval", c.Name)
		}
		var block time.Duration
		if c.BlockDuration != "" {
			if block, err = time.ParseDuration(c.BlockDuration); err != nil {
				return nil, errors.Wrapf(err, "ratelimit: class %s blockDuration", c.Name)
			}
		}
		classes = append(classes, domain.LimitClass{
			Name:          c.Name,
			Interval:      interval,
			MaxRequests:   c.MaxRequests,
			BlockDuration: block,
		})
	}
	return domain.NewRegistry(f.Version, classes...)
}

func LoadRegistryFile(path string) (*domain.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "ratelimit: read %s", path)
	}
	return ParseRegistry(data)
}
