package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
)

// applyEnv walks the config struct and overrides any field whose
// TW_SECTION__SUBSECTION__KEY environment variable is set. Key segments come
// from the yaml tags, uppercased.
func applyEnv(cfg *Config) {
	walkEnv(reflect.ValueOf(cfg).Elem(), EnvPrefix)
}

func walkEnv(v reflect.Value, prefix string) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + strings.ToUpper(tag)
		fv := v.Field(i)

		if fv.Kind() == reflect.Struct {
			// nested sections separate with a double underscore
			walkEnv(fv, key+"_")
			continue
		}
		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		setFromString(fv, raw)
	}
}

func setFromString(fv reflect.Value, raw string) {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			fv.SetInt(n)
		}
	case reflect.Float64:
		if x, err := strconv.ParseFloat(raw, 64); err == nil {
			fv.SetFloat(x)
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			fv.SetBool(b)
		}
	}
}
