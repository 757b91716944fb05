package registrar

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrDuplicateParameter indicates a parameter name was registered twice.
	ErrDuplicateParameter = errors.New("configuration parameter already registered")
	// ErrUnknownParameter indicates a value was supplied for an unregistered name.
	ErrUnknownParameter = errors.New("unknown configuration parameter")
	// ErrInvalidValue indicates a value could not be parsed as the parameter type.
	ErrInvalidValue = errors.New("invalid configuration value")
	// ErrOutOfRange indicates a numeric value fell outside its registered bounds.
	ErrOutOfRange = errors.New("configuration value out of range")
)

// ParameterType is the value type of a configuration parameter.
type ParameterType int

const (
	ParameterNumeric ParameterType = iota
	ParameterBool
)

func (t ParameterType) String() string {
	if t == ParameterBool {
		return "bool"
	}
	return "numeric"
}

// NumericOptions describes a float64 parameter. Min and Max bound the value
// when Min < Max.
type NumericOptions struct {
	Default     float64
	Min         float64
	Max         float64
	Description string
}

// BoolOptions describes a boolean parameter.
type BoolOptions struct {
	Default     bool
	Description string
}

type parameter struct {
	name    string
	typ     ParameterType
	numeric NumericOptions
	boolean BoolOptions
}

// ParameterInfo describes one registered parameter.
type ParameterInfo struct {
	Name        string
	Type        ParameterType
	Default     any
	Description string
}

// ConfigurationItem is one resolved parameter value. Value holds a float64 for
// numeric parameters and a bool for boolean ones.
type ConfigurationItem struct {
	Name  string
	Value any
}

// Float64 returns the value of a numeric item.
func (i ConfigurationItem) Float64() (float64, bool) {
	v, ok := i.Value.(float64)
	return v, ok
}

// Bool returns the value of a boolean item.
func (i ConfigurationItem) Bool() (bool, bool) {
	v, ok := i.Value.(bool)
	return v, ok
}

// ConfigurationUpdate is a batch of already-validated parameter values.
type ConfigurationUpdate []ConfigurationItem

// Lookup returns the last item named name.
func (u ConfigurationUpdate) Lookup(name string) (ConfigurationItem, bool) {
	for i := len(u) - 1; i >= 0; i-- {
		if u[i].Name == name {
			return u[i], true
		}
	}
	return ConfigurationItem{}, false
}

// RegisterNumeric implements ConfigurationRegistrar.
func (r *Registry) RegisterNumeric(name string, opts NumericOptions) error {
	if opts.Min < opts.Max && (opts.Default < opts.Min || opts.Default > opts.Max) {
		return fmt.Errorf("%w: default %v for %q outside [%v,%v]", ErrOutOfRange, opts.Default, name, opts.Min, opts.Max)
	}
	return r.register(&parameter{name: name, typ: ParameterNumeric, numeric: opts})
}

// RegisterBool implements ConfigurationRegistrar.
func (r *Registry) RegisterBool(name string, opts BoolOptions) error {
	return r.register(&parameter{name: name, typ: ParameterBool, boolean: opts})
}

func (r *Registry) register(p *parameter) error {
	if strings.TrimSpace(p.name) == "" {
		return fmt.Errorf("%w: empty parameter name", ErrInvalidValue)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.params[p.name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateParameter, p.name)
	}
	r.params[p.name] = p
	r.order = append(r.order, p.name)
	return nil
}

// Parameters lists registered parameters in registration order.
func (r *Registry) Parameters() []ParameterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ParameterInfo, 0, len(r.order))
	for _, name := range r.order {
		p := r.params[name]
		info := ParameterInfo{Name: p.name, Type: p.typ}
		switch p.typ {
		case ParameterBool:
			info.Default = p.boolean.Default
			info.Description = p.boolean.Description
		default:
			info.Default = p.numeric.Default
			info.Description = p.numeric.Description
		}
		out = append(out, info)
	}
	return out
}

// Resolve validates overrides against the registered parameters and returns a
// ConfigurationUpdate holding every registered parameter, overridden or
// defaulted, in registration order.
func (r *Registry) Resolve(overrides map[string]string) (ConfigurationUpdate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name := range overrides {
		if _, ok := r.params[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
		}
	}

	update := make(ConfigurationUpdate, 0, len(r.order))
	for _, name := range r.order {
		p := r.params[name]
		raw, overridden := overrides[name]
		if !overridden {
			update = append(update, ConfigurationItem{Name: name, Value: p.defaultValue()})
			continue
		}
		v, err := p.parse(raw)
		if err != nil {
			return nil, err
		}
		update = append(update, ConfigurationItem{Name: name, Value: v})
	}
	return update, nil
}

// Defaults returns every registered parameter at its default value.
func (r *Registry) Defaults() ConfigurationUpdate {
	update, _ := r.Resolve(nil)
	return update
}

func (p *parameter) defaultValue() any {
	if p.typ == ParameterBool {
		return p.boolean.Default
	}
	return p.numeric.Default
}

func (p *parameter) parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch p.typ {
	case ParameterBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			switch strings.ToLower(raw) {
			case "on", "yes":
				return true, nil
			case "off", "no":
				return false, nil
			}
			return nil, fmt.Errorf("%w: %q for %q: %v", ErrInvalidValue, raw, p.name, err)
		}
		return b, nil
	default:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %q for %q", ErrInvalidValue, raw, p.name)
		}
		o := p.numeric
		if o.Min < o.Max && (f < o.Min || f > o.Max) {
			return nil, fmt.Errorf("%w: %v for %q outside [%v,%v]", ErrOutOfRange, f, p.name, o.Min, o.Max)
		}
		return f, nil
	}
}
