package bridge

import (
	"reflect"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
)

// Options is the open set of construction options. Each backend picks the
// keys it understands and warns about the rest.
type Options map[string]any

// decodeOptions fills cfg from opts. Keys cfg does not declare are logged as
// unknown and otherwise ignored. Keys match their `option` tag without regard
// to case.
func decodeOptions(opts Options, cfg any, logger zerolog.Logger) error {
	if len(opts) == 0 {
		return nil
	}

	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "option",
		Metadata:         &md,
		Result:           cfg,
		WeaklyTypedInput: true,
		MatchName:        strings.EqualFold,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return newError("options", "", ErrConfig, err)
	}

	if err := dec.Decode(map[string]any(opts)); err != nil {
		return newError("options", "", ErrConfig, err)
	}

	unused := md.Unused
	sort.Strings(unused)
	for _, name := range unused {
		logger.Warn().Str("option", name).Msg("unknown option")
	}
	return nil
}

// optionNames lists the option keys recognized by cfg, for help output.
func optionNames(cfg any) []string {
	t := reflect.TypeOf(cfg)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var names []string
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("option")
		if tag == "" || tag == "-" {
			continue
		}
		names = append(names, strings.Split(tag, ",")[0])
	}
	return names
}
