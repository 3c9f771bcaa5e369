package asset

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/afroash/greenhouse-collector/internal/config"
	"github.com/afroash/greenhouse-collector/internal/sensor"
	"github.com/afroash/greenhouse-collector/internal/storage"
)

// ShelfAsset is a shelf of pots, tagged with shelf_id
type ShelfAsset struct{ *base }

// PotAsset is a single pot on a shelf
type PotAsset struct{ *base }

// GreenhouseAsset covers the whole greenhouse
type GreenhouseAsset struct{ *base }

// PlantAsset is one tracked plant
type PlantAsset struct{ *base }

// NewShelf creates a shelf asset with measurement "shelf"
func NewShelf(id string, inputs []Input, policy config.ErrorPolicy, sink storage.Submitter, logger zerolog.Logger) *ShelfAsset {
	tags := map[string]string{"shelf_id": id}
	return &ShelfAsset{newBase("shelf-"+id, config.AssetShelf, tags, inputs, policy, sink, logger)}
}

// NewPot creates a pot asset with measurement "pot". plantID is optional.
func NewPot(id, shelfSide, potSide, plantID string, inputs []Input, policy config.ErrorPolicy, sink storage.Submitter, logger zerolog.Logger) *PotAsset {
	tags := map[string]string{
		"pot_id":     id,
		"shelf_side": shelfSide,
		"pot_side":   potSide,
	}
	if plantID != "" {
		tags["plant_id"] = plantID
	}
	return &PotAsset{newBase("pot-"+id, config.AssetPot, tags, inputs, policy, sink, logger)}
}

// NewGreenhouse creates a greenhouse asset with measurement "greenhouse".
// The greenhouse_id tag is only set when id is not empty.
func NewGreenhouse(id string, inputs []Input, policy config.ErrorPolicy, sink storage.Submitter, logger zerolog.Logger) *GreenhouseAsset {
	name := "greenhouse"
	tags := map[string]string{}
	if id != "" {
		name += "-" + id
		tags["greenhouse_id"] = id
	}
	return &GreenhouseAsset{newBase(name, config.AssetGreenhouse, tags, inputs, policy, sink, logger)}
}

// NewPlant creates a plant asset with measurement "plant"
func NewPlant(id string, inputs []Input, policy config.ErrorPolicy, sink storage.Submitter, logger zerolog.Logger) *PlantAsset {
	tags := map[string]string{"plant_id": id}
	return &PlantAsset{newBase("plant-"+id, config.AssetPlant, tags, inputs, policy, sink, logger)}
}

// New creates the asset variant named by cfg.Kind
func New(cfg config.AssetConfig, inputs []Input, policy config.ErrorPolicy, sink storage.Submitter, logger zerolog.Logger) (Asset, error) {
	switch cfg.Kind {
	case config.AssetShelf:
		return NewShelf(cfg.ID, inputs, policy, sink, logger), nil
	case config.AssetPot:
		return NewPot(cfg.ID, cfg.ShelfSide, cfg.PotSide, cfg.PlantID, inputs, policy, sink, logger), nil
	case config.AssetGreenhouse:
		return NewGreenhouse(cfg.ID, inputs, policy, sink, logger), nil
	case config.AssetPlant:
		return NewPlant(cfg.ID, inputs, policy, sink, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown asset kind %q", config.ErrInvalid, cfg.Kind)
	}
}

// SensorLookup finds a constructed sensor by its configured name
type SensorLookup interface {
	Get(name string) (sensor.Sensor, bool)
}

// BuildAll creates every configured asset, binding each to the sensors it
// names. Every asset submits through sink.
func BuildAll(cfg *config.Config, sensors SensorLookup, sink storage.Submitter, logger zerolog.Logger) ([]Asset, error) {
	byName := make(map[string]config.SensorConfig, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		byName[s.Name] = s
	}

	assets := make([]Asset, 0, len(cfg.Assets))
	for i, ac := range cfg.Assets {
		inputs := make([]Input, 0, len(ac.Sensors))
		for _, name := range ac.Sensors {
			sc, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("%w: asset %d: unknown sensor %q", config.ErrInvalid, i, name)
			}
			sn, ok := sensors.Get(name)
			if !ok {
				return nil, fmt.Errorf("%w: asset %d: sensor %q was not built", config.ErrInvalid, i, name)
			}
			inputs = append(inputs, Input{Field: sc.FieldName(), Sensor: sn})
		}

		a, err := New(ac, inputs, ac.Policy(cfg.Collection.OnSensorError), sink, logger)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		assets = append(assets, a)
	}
	return assets, nil
}
