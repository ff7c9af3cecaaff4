package core

import (
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

// deepMerge folds overlay into base and returns the result. Semantics:
// maps merge by key recursively, arrays are replaced wholesale, and an
// explicit null in the overlay removes the key. Neither input is mutated.
func deepMerge(base, overlay map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if v == nil {
			delete(out, k)
			continue
		}
		overlayMap, overlayIsMap := v.(map[string]interface{})
		baseMap, baseIsMap := out[k].(map[string]interface{})
		if overlayIsMap && baseIsMap {
			out[k] = deepMerge(baseMap, overlayMap)
			continue
		}
		out[k] = v
	}
	return out
}

// mergeLayer folds one context layer into the accumulated resolution,
// recording which tier supplied each top-level key
func mergeLayer(acc models.JSONMap, provenance map[string]models.ContextLevel, layer *models.Context) models.JSONMap {
	if len(layer.Data) == 0 {
		return acc
	}
	merged := deepMerge(acc, layer.Data)
	for k, v := range layer.Data {
		if v == nil {
			delete(provenance, k)
			continue
		}
		provenance[k] = layer.Level
	}
	return merged
}
