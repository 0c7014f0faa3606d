// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config handles the classifier daemon's own HCL configuration:
// which interfaces to bind, where each device's profile lives, each
// device's nfqueue base number, and logging. This is distinct from the per-device YAML profile
// (see package profile), which describes a device's allowed traffic.
package config

import (
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/flywall/internal/errors"
)

// DeviceConfig binds one device's YAML profile to an nfqueue base number.
type DeviceConfig struct {
	Name        string `hcl:"name,label"`
	ProfilePath string `hcl:"profile"`
	QueueBase   int    `hcl:"queue_base"`
}

// Config is the classifier daemon's top-level configuration.
type Config struct {
	Table       string         `hcl:"table,optional"`        // nftables table name, default "flywall"
	Interfaces  []string       `hcl:"interfaces"`             // interfaces carrying device traffic
	Devices     []DeviceConfig `hcl:"device,block"`
	LogType     string         `hcl:"log_type,optional"`      // none | csv | pcap
	LogGroup    int            `hcl:"log_group,optional"`     // nflog group number, when LogType != none
	LogLevel    string         `hcl:"log_level,optional"`     // debug | info | warn | error
	SyslogHost  string         `hcl:"syslog_host,optional"`
	SyslogPort  int            `hcl:"syslog_port,optional"`
	MetricsAddr string         `hcl:"metrics_addr,optional"` // listen address for /metrics, empty disables it
}

// DefaultConfig returns the daemon defaults applied before an HCL file is
// merged on top.
func DefaultConfig() Config {
	return Config{
		Table:    "flywall",
		LogType:  "none",
		LogLevel: "info",
	}
}

// ConfigFile wraps a parsed Config together with its hclwrite AST so edits
// made through SetRawHCL / Save round-trip the original formatting and
// comments instead of emitting a canonicalized rewrite.
type ConfigFile struct {
	Path    string
	Config  *Config
	hclFile *hclwrite.File
}

// LoadConfigFile reads and parses an HCL config file from disk.
func LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to read config file")
	}
	return LoadConfigFromBytes(path, data)
}

// LoadConfigFromBytes parses HCL config from bytes, preserving the source
// AST for later round-trip edits.
func LoadConfigFromBytes(filename string, data []byte) (*ConfigFile, error) {
	hclFile, diags := hclwrite.ParseConfig(data, filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, errors.Errorf(errors.KindValidation, "failed to parse HCL: %s", diags.Error())
	}

	cfg := DefaultConfig()
	if err := hclsimple.Decode(filename, data, nil, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to decode config")
	}

	return &ConfigFile{Path: filename, Config: &cfg, hclFile: hclFile}, nil
}

// Save writes the config back to its original path, preserving comments
// for any fields untouched since load.
func (cf *ConfigFile) Save() error {
	return cf.SaveTo(cf.Path)
}

// SaveTo writes the config's underlying HCL source to path.
func (cf *ConfigFile) SaveTo(path string) error {
	return os.WriteFile(path, cf.hclFile.Bytes(), 0o644)
}

// GetRawHCL returns the underlying HCL source, with any uncommitted
// SetRawHCL edits applied.
func (cf *ConfigFile) GetRawHCL() []byte {
	return cf.hclFile.Bytes()
}

// SetRawHCL replaces the top-level attribute named key with value,
// appending it to the root body if it doesn't already exist. It does not
// re-decode cf.Config; callers should reload after a save if they need the
// typed view to reflect the edit.
func (cf *ConfigFile) SetRawHCL(key string, value string) {
	cf.hclFile.Body().SetAttributeValue(key, cty.StringVal(value))
}
