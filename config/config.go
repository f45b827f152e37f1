// Package config loads and defaults the engine's external configuration
// object: the audio device, block shape, node list, connection list,
// and optional control endpoint. Load reads JSON or YAML by extension;
// Resolve fills every optional field, with explicit values winning over
// the latency hint.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LatencyHint is a coarse hint used to default BlockFrames when it is
// left unset.
type LatencyHint string

const (
	LatencyLow    LatencyHint = "low"
	LatencyNormal LatencyHint = "normal"
	LatencyHigh   LatencyHint = "high"
)

// NodeSpec describes one graph node: a unique name, a registered type
// string, and type-specific parameters.
type NodeSpec struct {
	Name   string            `json:"name" yaml:"name"`
	Type   string            `json:"type" yaml:"type"`
	Params map[string]string `json:"params" yaml:"params"`
}

// ConnectionSpec describes one edge of the node graph. BufferPolicy is
// "auto" (default), "share", or "copy"; AllowFormatConvert permits the
// engine to insert an implicit conversion node when the two pads'
// formats differ.
type ConnectionSpec struct {
	SourceName         string `json:"source_name" yaml:"source_name"`
	SourcePad          int    `json:"source_pad" yaml:"source_pad"`
	SinkName           string `json:"sink_name" yaml:"sink_name"`
	SinkPad            int    `json:"sink_pad" yaml:"sink_pad"`
	AllowFormatConvert bool   `json:"allow_format_convert" yaml:"allow_format_convert"`
	BufferPolicy       string `json:"buffer_policy" yaml:"buffer_policy"`
}

// ControlSpec describes the optional external-control endpoint.
type ControlSpec struct {
	TargetIP    string `json:"target_ip" yaml:"target_ip"`
	TargetPort  int    `json:"target_port" yaml:"target_port"`
	ReceivePort int    `json:"receive_port" yaml:"receive_port"`
}

// ControlCommand is one entry of initial_control_commands, applied once
// at startup before the first block is processed.
type ControlCommand struct {
	Target string         `json:"target" yaml:"target"`
	Kind   string         `json:"kind" yaml:"kind"`
	Params map[string]any `json:"params" yaml:"params"`
}

// Configuration is the fully-parsed, still-undefaulted external
// configuration object. Call Resolve to obtain a Resolved value with
// every optional field defaulted.
type Configuration struct {
	AudioDevice     string           `json:"audio_device" yaml:"audio_device"`
	SampleRate      int              `json:"sample_rate" yaml:"sample_rate"`
	BlockFrames     int              `json:"block_frames" yaml:"block_frames"`
	InternalFormat  string           `json:"internal_format" yaml:"internal_format"`
	InternalLayout  string           `json:"internal_layout" yaml:"internal_layout"`
	LatencyHint     LatencyHint      `json:"latency_hint" yaml:"latency_hint"`
	Nodes           []NodeSpec       `json:"nodes" yaml:"nodes"`
	Connections     []ConnectionSpec `json:"connections" yaml:"connections"`
	Control         *ControlSpec     `json:"control" yaml:"control"`
	InitialCommands []ControlCommand `json:"initial_control_commands" yaml:"initial_control_commands"`
}

// Resolved is a Configuration with every optional field given a concrete
// value, ready to hand to the engine.
type Resolved struct {
	Configuration
}

// Load reads a configuration file, dispatching on extension: ".yaml" and
// ".yml" parse as YAML, everything else (including ".json") as JSON.
// audio_device is required; the sentinel value "none" selects file-only
// operation with no hardware driver.
func Load(path string) (Configuration, error) {
	var cfg Configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s as yaml: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s as json: %w", path, err)
		}
	}
	if cfg.AudioDevice == "" {
		return cfg, fmt.Errorf("config: %s: audio_device is required", path)
	}
	return cfg, nil
}

// Resolve defaults every optional field, preferring an explicit
// BlockFrames/SampleRate over the latency hint.
func Resolve(c Configuration) Resolved {
	rate := c.SampleRate
	if rate <= 0 {
		rate = 48000
	}

	block := c.BlockFrames
	if block <= 0 {
		switch c.LatencyHint {
		case LatencyLow:
			if rate <= 48000 {
				block = 64
			} else {
				block = 128
			}
		case LatencyHigh:
			block = 1024
		default:
			block = 256
		}
	}

	internalFormat := c.InternalFormat
	if internalFormat == "" {
		internalFormat = "f32"
	}
	internalLayout := c.InternalLayout
	if internalLayout == "" {
		internalLayout = "interleaved"
	}

	r := c
	r.SampleRate = rate
	r.BlockFrames = block
	r.InternalFormat = internalFormat
	r.InternalLayout = internalLayout
	return Resolved{Configuration: r}
}
