// Package filterpipeline implements the sample-domain DSP graph built
// from a textual description and wrapped by nodes/filter's
// FilterProcessor: named stage instances, per-instance parameters, and
// thread-safe updates applied at a block boundary.
package filterpipeline

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Status is the result of one Process call.
type Status int

const (
	StatusOK Status = iota
	StatusNeedMore
	StatusEndOfStream
)

// Stage is one named DSP primitive in the pipeline.
type Stage interface {
	// Name is the primitive's registry name, e.g. "eq", "compressor".
	Name() string
	// Process transforms one block of interleaved float32 samples in
	// place (or returns a same-length replacement) for the given
	// channel count.
	Process(samples []float32, channels int, sampleRate int) []float32
	// UpdateParameter applies a live parameter change. Returns an error
	// if key is not recognized.
	UpdateParameter(key, value string) error
}

// StageFactory builds a Stage from its construction parameters (the
// key=value pairs following `name@instance` in the description).
type StageFactory func(params map[string]string) (Stage, error)

var factories = map[string]StageFactory{}

// RegisterStage adds a construction factory for a primitive name.
// Built-in primitives (gain, volume, eq, compressor) self-register via
// init() in this package; callers may register additional primitives
// before calling Build.
func RegisterStage(name string, f StageFactory) {
	factories[name] = f
}

// instance pairs a Stage with the instance name the description gave it
// (the part after '@'), used to address update_parameter calls.
type instance struct {
	name  string
	stage Stage
}

// Pipeline is a compiled, ordered sequence of stages sharing one block
// shape. Parameter updates are safe to call concurrently with Process;
// they take effect no later than the next Process call, never mid-block.
type Pipeline struct {
	mu        sync.Mutex
	instances []instance
	byName    map[string]Stage
	eos       bool
}

// Build parses a description of the form
//
//	name@instance key=value key=value, name2@instance2 key=value
//
// where "@instance" is optional and defaults to the primitive name. A
// bare "name=value" shorthand (e.g. "volume=0.5") constructs one
// instance with the value bound to the primitive's principal parameter.
func Build(description string) (*Pipeline, error) {
	p := &Pipeline{byName: make(map[string]Stage)}
	segments := splitTopLevel(description, ',')
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		name, instName, params, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}
		factory, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("filterpipeline: unknown primitive %q", name)
		}
		stage, err := factory(params)
		if err != nil {
			return nil, fmt.Errorf("filterpipeline: building %q: %w", name, err)
		}
		if instName == "" {
			instName = name
		}
		if _, exists := p.byName[instName]; exists {
			return nil, fmt.Errorf("filterpipeline: duplicate instance name %q", instName)
		}
		p.instances = append(p.instances, instance{name: instName, stage: stage})
		p.byName[instName] = stage
	}
	return p, nil
}

// principalParam maps a primitive name to the key its "name=value"
// shorthand binds, e.g. "volume=0.5" -> volume with level=0.5.
var principalParam = map[string]string{
	"volume":     "level",
	"gain":       "g",
	"eq":         "g",
	"compressor": "ratio",
}

func parseSegment(seg string) (name, instName string, params map[string]string, err error) {
	fields := strings.Fields(seg)
	if len(fields) == 0 {
		return "", "", nil, fmt.Errorf("filterpipeline: empty segment")
	}
	params = make(map[string]string)
	head := fields[0]
	if eq := strings.IndexByte(head, '='); eq >= 0 && !strings.ContainsRune(head[:eq], '@') {
		name = head[:eq]
		key, ok := principalParam[name]
		if !ok {
			return "", "", nil, fmt.Errorf("filterpipeline: primitive %q has no shorthand parameter", name)
		}
		params[key] = head[eq+1:]
	} else if at := strings.IndexByte(head, '@'); at >= 0 {
		name = head[:at]
		instName = head[at+1:]
	} else {
		name = head
	}
	for _, kv := range fields[1:] {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return "", "", nil, fmt.Errorf("filterpipeline: malformed parameter %q", kv)
		}
		params[kv[:eq]] = kv[eq+1:]
	}
	return name, instName, params, nil
}

// splitTopLevel splits s on sep, trimming nothing internal — descriptions
// have no nested delimiters so a plain split suffices.
func splitTopLevel(s string, sep byte) []string {
	return strings.Split(s, string(sep))
}

// Process pushes one block of interleaved float32 samples through every
// stage in order and returns the transformed block. A pipeline that has
// been marked end-of-stream (via SignalEndOfStream) returns
// StatusEndOfStream and nil samples from then on.
func (p *Pipeline) Process(samples []float32, channels int, sampleRate int) ([]float32, Status) {
	p.mu.Lock()
	eos := p.eos
	p.mu.Unlock()
	if eos {
		return nil, StatusEndOfStream
	}
	out := samples
	for _, inst := range p.instances {
		out = inst.stage.Process(out, channels, sampleRate)
	}
	return out, StatusOK
}

// SignalEndOfStream marks the pipeline as drained; the next Process call
// (and every one after it) returns StatusEndOfStream.
func (p *Pipeline) SignalEndOfStream() {
	p.mu.Lock()
	p.eos = true
	p.mu.Unlock()
}

// UpdateParameter targets a named sub-filter instance. Returns an error
// if the instance is unknown or the key is invalid for that stage.
func (p *Pipeline) UpdateParameter(instanceName, key, value string) error {
	p.mu.Lock()
	stage, ok := p.byName[instanceName]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("filterpipeline: instance %q not found", instanceName)
	}
	return stage.UpdateParameter(key, value)
}

func parseFloat(s string, def float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
