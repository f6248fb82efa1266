package util

import (
	"github.com/mohae/deepcopy"
	"github.com/project-flogo/core/data/coerce"
)

func DeepCopy(data interface{}) interface{} {
	return deepcopy.Copy(data)
}

// DeepCopyMap copies a data map, nil stays nil
func DeepCopyMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	copiedMap, _ := coerce.ToObject(deepcopy.Copy(data))
	return copiedMap
}

// MergeMaps returns a copy of base overlaid with the entries of overlay
func MergeMaps(base, overlay map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
