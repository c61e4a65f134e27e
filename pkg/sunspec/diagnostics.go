package sunspec

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type WarningKind uint8

const (
	WarnOddStringLength WarningKind = iota
	WarnMissingTrailingPad
	WarnLengthMismatch
	WarnNonMultipleRepeatingLength
	WarnTruncatedDevice
	WarnScaleFactorNotImplemented
	WarnScaleFactorMissing
	WarnAmbiguousBaseAddress
	WarnUnknownDid
	WarnRepeatingBlockNotLast
)

var warningNames = map[WarningKind]string{
	WarnOddStringLength:            "odd_string_length",
	WarnMissingTrailingPad:         "missing_trailing_pad",
	WarnLengthMismatch:             "length_mismatch",
	WarnNonMultipleRepeatingLength: "non_multiple_repeating_length",
	WarnTruncatedDevice:            "truncated_device",
	WarnScaleFactorNotImplemented:  "scale_factor_not_implemented",
	WarnScaleFactorMissing:         "scale_factor_missing",
	WarnAmbiguousBaseAddress:       "ambiguous_base_address",
	WarnUnknownDid:                 "unknown_did",
	WarnRepeatingBlockNotLast:      "repeating_block_not_last",
}

func (k WarningKind) String() string {
	if n, ok := warningNames[k]; ok {
		return n
	}
	return fmt.Sprintf("warning(%d)", uint8(k))
}

// Warning is a non fatal condition found while resolving, decoding or
// reading. Fields not relevant to the kind are left zero.
type Warning struct {
	Kind     WarningKind
	Model    string
	Did      uint16
	Point    string
	Expected int
	Actual   int
	Address  uint32
}

func (w Warning) String() string {
	switch w.Kind {
	case WarnLengthMismatch, WarnNonMultipleRepeatingLength, WarnMissingTrailingPad:
		return fmt.Sprintf("%s: model %s (did %d) expected %d registers, got %d", w.Kind, w.Model, w.Did, w.Expected, w.Actual)
	case WarnTruncatedDevice:
		return fmt.Sprintf("%s: model %s (did %d) ends before point %s", w.Kind, w.Model, w.Did, w.Point)
	case WarnOddStringLength:
		return fmt.Sprintf("%s: model %s point %s has %d bytes", w.Kind, w.Model, w.Point, w.Actual)
	case WarnAmbiguousBaseAddress:
		return fmt.Sprintf("%s: signature found at 0x%x", w.Kind, w.Address)
	case WarnUnknownDid:
		return fmt.Sprintf("%s: did %d at %d (%d registers) skipped", w.Kind, w.Did, w.Address, w.Actual)
	}
	return fmt.Sprintf("%s: model %s point %s", w.Kind, w.Model, w.Point)
}

// Diagnostics receives warnings.
type Diagnostics interface {
	Warn(w Warning)
}

type DiagnosticsFunc func(w Warning)

func (f DiagnosticsFunc) Warn(w Warning) {
	f(w)
}

// Discard drops every warning.
var Discard Diagnostics = DiagnosticsFunc(func(Warning) {})

// Collector stores warnings in memory. Safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	warnings []Warning
}

func (c *Collector) Warn(w Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, w)
}

func (c *Collector) Warnings() []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Warning(nil), c.warnings...)
}

// Kinds returns the kinds of the collected warnings in arrival order.
func (c *Collector) Kinds() []WarningKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kinds []WarningKind
	for _, w := range c.warnings {
		kinds = append(kinds, w.Kind)
	}
	return kinds
}

// Tee forwards every warning to all sinks.
func Tee(sinks ...Diagnostics) Diagnostics {
	return DiagnosticsFunc(func(w Warning) {
		for _, s := range sinks {
			if s != nil {
				s.Warn(w)
			}
		}
	})
}

// ZapDiagnostics logs warnings at warn level.
func ZapDiagnostics(logger *zap.Logger) Diagnostics {
	return DiagnosticsFunc(func(w Warning) {
		fields := []zap.Field{zap.Stringer("kind", w.Kind)}
		if w.Model != "" {
			fields = append(fields, zap.String("model", w.Model))
		}
		if w.Did != 0 {
			fields = append(fields, zap.Uint16("did", w.Did))
		}
		if w.Point != "" {
			fields = append(fields, zap.String("point", w.Point))
		}
		if w.Expected != 0 || w.Actual != 0 {
			fields = append(fields, zap.Int("expected", w.Expected), zap.Int("actual", w.Actual))
		}
		if w.Address != 0 {
			fields = append(fields, zap.Uint32("address", w.Address))
		}
		logger.Warn(w.String(), fields...)
	})
}

func diagnostics(d Diagnostics) Diagnostics {
	if d == nil {
		return Discard
	}
	return d
}
