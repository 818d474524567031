package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

const maskedValue = "********"

// ToMap flattens the configuration into "section.key" entries for display.
// Secrets are masked.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)
	configValue := reflect.ValueOf(*c)
	configType := configValue.Type()

	for i := 0; i < configValue.NumField(); i++ {
		section := yamlKey(configType.Field(i))
		if section == "" {
			continue
		}
		sectionValue := configValue.Field(i)
		sectionType := sectionValue.Type()
		for j := 0; j < sectionValue.NumField(); j++ {
			key := yamlKey(sectionType.Field(j))
			if key == "" {
				continue
			}
			result[section+"."+key] = formatValue(sectionValue.Field(j))
		}
	}

	if c.Remote.Password != "" {
		result["remote.password"] = maskedValue
	}
	if c.Client.Password != "" {
		result["client.password"] = maskedValue
	}
	return result
}

// Keys returns the keys of ToMap in sorted order.
func (c *Config) Keys() []string {
	m := c.ToMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetValue returns the display value of one "section.key" entry.
func (c *Config) GetValue(key string) (string, error) {
	v, ok := c.ToMap()[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", errutils.ErrUnknownConfigKey, key)
	}
	return v, nil
}

func yamlKey(field reflect.StructField) string {
	tag := field.Tag.Get("yaml")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

func formatValue(fieldValue reflect.Value) string {
	switch fieldValue.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(fieldValue.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if s, ok := fieldValue.Interface().(fmt.Stringer); ok {
			return s.String()
		}
		return strconv.FormatInt(fieldValue.Int(), 10)
	case reflect.Slice:
		parts := make([]string, 0, fieldValue.Len())
		for i := 0; i < fieldValue.Len(); i++ {
			parts = append(parts, fmt.Sprint(fieldValue.Index(i).Interface()))
		}
		return strings.Join(parts, ",")
	case reflect.String:
		return fieldValue.String()
	default:
		return fmt.Sprintf("%v", fieldValue.Interface())
	}
}
