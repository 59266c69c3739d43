// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Layered configuration loader. Precedence, lowest first: the values already
// held by the target struct, an optional config file, HIOLOAD_* environment
// variables and explicitly set command-line flags.

package control

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader consults.
const EnvPrefix = "HIOLOAD"

// Load decodes configuration into out, which must be a pointer to a struct
// tagged with mapstructure keys. file and flags may be empty/nil.
func Load(out any, file string, flags *pflag.FlagSet) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: target must be a pointer to struct, got %T", out)
	}

	v := viper.New()
	registerDefaults(v, rv.Elem())

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			// unchanged flags would shadow file and env values with their defaults
			if !f.Changed || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(FlagKey(f.Name), f)
		})
		if bindErr != nil {
			return fmt.Errorf("config: bind flags: %w", bindErr)
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	return nil
}

// FlagKey maps a dashed flag name to its config key.
func FlagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// registerDefaults makes every tagged field known to viper so that
// AutomaticEnv can resolve it during Unmarshal.
func registerDefaults(v *viper.Viper, rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if opts == "squash" && field.Type.Kind() == reflect.Struct {
			registerDefaults(v, rv.Field(i))
			continue
		}
		if name == "" || name == "-" {
			continue
		}
		v.SetDefault(name, rv.Field(i).Interface())
	}
}
