package capability

import (
	"context"
	"fmt"
	"reflect"
)

// Func adapts a plain function into an Analyzer. Options are accepted when
// they have the same dynamic type as Defaults.
type Func struct {
	Tag      Feature
	Defaults any
	Fn       func(ctx context.Context, frame Frame, opts any) (any, error)
}

// Feature implements Analyzer.
func (f *Func) Feature() Feature { return f.Tag }

// DefaultOptions implements Analyzer.
func (f *Func) DefaultOptions() any { return f.Defaults }

// ValidateOptions implements Analyzer.
func (f *Func) ValidateOptions(opts any) error {
	if f.Defaults == nil {
		if opts != nil {
			return fmt.Errorf("%w: %s takes no options", ErrInvalidOptions, f.Tag)
		}
		return nil
	}
	if reflect.TypeOf(opts) != reflect.TypeOf(f.Defaults) {
		return fmt.Errorf("%w: %s wants %T, got %T", ErrInvalidOptions, f.Tag, f.Defaults, opts)
	}
	return nil
}

// Analyze implements Analyzer.
func (f *Func) Analyze(ctx context.Context, frame Frame, opts any) (any, error) {
	if f.Fn == nil {
		return nil, nil
	}
	return f.Fn(ctx, frame, opts)
}

// Close implements Analyzer.
func (f *Func) Close() error { return nil }
