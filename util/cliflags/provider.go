// Package cliflags provides the flags of a cli.Context to koanf.
// Only flags set on the command line or through their env vars are
// provided, so unset flags never shadow config defaults.
package cliflags

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/maps"
	"github.com/urfave/cli/v2"
)

// CLIFlags is a koanf.Provider over the set flags of a cli context.
type CLIFlags struct {
	mp map[string]any
}

// Provider collects the set flags of the app and the current
// command. Flag names are mapped to config keys by cb. If delim is
// not empty, the keys returned by cb are unflattened by delim.
func Provider(ctx *cli.Context, delim string, cb func(string) string) *CLIFlags {
	var flags []cli.Flag
	if ctx.App != nil {
		flags = append(flags, ctx.App.VisibleFlags()...)
	}
	if ctx.Command != nil {
		flags = append(flags, ctx.Command.VisibleFlags()...)
	}

	mp := make(map[string]any)

	for _, flag := range flags {
		name := flag.Names()[0]
		if !ctx.IsSet(name) {
			continue
		}

		value, err := flagValue(ctx, name, flag)
		if err != nil {
			continue
		}

		key := name
		if cb != nil {
			key = cb(name)
		}
		mp[key] = value
	}

	if delim != "" {
		mp = maps.Unflatten(mp, delim)
	}

	return &CLIFlags{mp: mp}
}

// ReadBytes is not supported by the cli provider.
func (e *CLIFlags) ReadBytes() ([]byte, error) {
	return nil, errors.New("cli provider does not support this method")
}

// Read returns the collected flag values.
func (e *CLIFlags) Read() (map[string]any, error) {
	return e.mp, nil
}

func flagValue(ctx *cli.Context, name string, flag cli.Flag) (any, error) {
	switch flag.(type) {
	case *cli.StringFlag:
		return ctx.String(name), nil
	case *cli.PathFlag:
		return ctx.Path(name), nil
	case *cli.StringSliceFlag:
		return ctx.StringSlice(name), nil
	case *cli.IntFlag:
		return ctx.Int(name), nil
	case *cli.IntSliceFlag:
		return ctx.IntSlice(name), nil
	case *cli.Int64Flag:
		return ctx.Int64(name), nil
	case *cli.Int64SliceFlag:
		return ctx.Int64Slice(name), nil
	case *cli.UintFlag:
		return ctx.Uint(name), nil
	case *cli.BoolFlag:
		return ctx.Bool(name), nil
	case *cli.Float64Flag:
		return ctx.Float64(name), nil
	case *cli.Float64SliceFlag:
		return ctx.Float64Slice(name), nil
	case *cli.DurationFlag:
		return ctx.Duration(name), nil
	default:
		return nil, fmt.Errorf("unsupported flag type %T", flag)
	}
}
