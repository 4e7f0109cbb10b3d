package config

import (
	"reflect"
	"time"

	"github.com/knadh/koanf/maps"
)

// Flatten returns cfg as "section.key" values named by their koanf tags.
// Durations are rendered as strings so the result reads back through Load.
func Flatten(cfg *HubConfig) map[string]any {
	out := make(map[string]any)
	root := reflect.ValueOf(cfg).Elem()
	for i := 0; i < root.NumField(); i++ {
		section := root.Type().Field(i).Tag.Get("koanf")
		sv := root.Field(i)
		for j := 0; j < sv.NumField(); j++ {
			key := sv.Type().Field(j).Tag.Get("koanf")
			if key == "" {
				continue
			}
			v := sv.Field(j).Interface()
			if d, ok := v.(time.Duration); ok {
				v = d.String()
			}
			out[section+"."+key] = v
		}
	}
	return out
}

// Nested returns cfg as the nested map a YAML config file would hold.
func Nested(cfg *HubConfig) map[string]any {
	return maps.Unflatten(Flatten(cfg), ".")
}
