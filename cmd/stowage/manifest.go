package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stowage/internal/core"
)

// stationManifest is the YAML document accepted by init.
//
//	containers:
//	  - {id: S1, zone: Storage, width: 100, depth: 85, height: 200}
//	items:
//	  - {id: "000001", name: Food Packet, width: 10, depth: 10, height: 20,
//	     mass: 5, priority: 80, expiryDay: 30, usageLimit: 0, preferredZone: Storage}
type stationManifest struct {
	Containers []containerSpec `yaml:"containers"`
	Items      []itemSpec      `yaml:"items"`
	// FallbackZones are tried after an item's preferred zone.
	FallbackZones []string `yaml:"fallbackZones"`
}

type containerSpec struct {
	ID     string  `yaml:"id"`
	Zone   string  `yaml:"zone"`
	Width  float64 `yaml:"width"`
	Depth  float64 `yaml:"depth"`
	Height float64 `yaml:"height"`
}

type itemSpec struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	Width         float64 `yaml:"width"`
	Depth         float64 `yaml:"depth"`
	Height        float64 `yaml:"height"`
	Mass          float64 `yaml:"mass"`
	Priority      int     `yaml:"priority"`
	ExpiryDay     *int    `yaml:"expiryDay"`
	UsageLimit    int     `yaml:"usageLimit"`
	DailyUsage    int     `yaml:"dailyUsage"`
	PreferredZone string  `yaml:"preferredZone"`
}

func (c containerSpec) container() core.Container {
	return core.Container{
		Base:       core.Base{ID: c.ID},
		Zone:       c.Zone,
		Dimensions: core.Dimensions{Width: c.Width, Depth: c.Depth, Height: c.Height},
	}
}

func (i itemSpec) item() core.Item {
	return core.Item{
		Base:          core.Base{ID: i.ID},
		Name:          i.Name,
		Dimensions:    core.Dimensions{Width: i.Width, Depth: i.Depth, Height: i.Height},
		Mass:          i.Mass,
		Priority:      i.Priority,
		ExpiryDay:     i.ExpiryDay,
		UsageLimit:    i.UsageLimit,
		DailyUsage:    i.DailyUsage,
		PreferredZone: i.PreferredZone,
	}
}

func loadManifest(path string) (stationManifest, error) {
	var m stationManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	seen := make(map[string]bool)
	for _, c := range m.Containers {
		if c.ID == "" {
			return m, fmt.Errorf("manifest: container without id")
		}
		if seen["c:"+c.ID] {
			return m, fmt.Errorf("manifest: duplicate container %s", c.ID)
		}
		seen["c:"+c.ID] = true
	}
	for _, it := range m.Items {
		if it.ID == "" {
			return m, fmt.Errorf("manifest: item without id")
		}
		if seen["i:"+it.ID] {
			return m, fmt.Errorf("manifest: duplicate item %s", it.ID)
		}
		seen["i:"+it.ID] = true
	}
	return m, nil
}
