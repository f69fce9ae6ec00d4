package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/fystack/storage-inspector/pkg/common/enum"
)

type Config struct {
	Environment string                    `yaml:"env"       validate:"required,oneof=production development"`
	Log         LogConfig                 `yaml:"log"`
	Reader      enum.ReaderType           `yaml:"reader"    validate:"omitempty,oneof=rpc geth"`
	Defaults    ClientConfig              `yaml:"defaults"`
	Nodes       map[string]NodeConfig     `yaml:"nodes"     validate:"required,min=1,dive"`
	Decoder     DecoderConfig             `yaml:"decoder"`
	Cache       CacheConfig               `yaml:"cache"`
	NATS        NatsConfig                `yaml:"nats"`
	Contracts   map[string]ContractConfig `yaml:"contracts" validate:"required,min=1,dive"`
}

type LogConfig struct {
	Level   string `yaml:"level"    validate:"omitempty,oneof=debug info warn error"`
	NoColor bool   `yaml:"no_color"`
}

type ClientConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries" validate:"min=0"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Throttle   Throttle      `yaml:"throttle"`
}

type Throttle struct {
	RPS       int `yaml:"rps"        validate:"min=0"`
	Burst     int `yaml:"burst"      validate:"min=0"`
	BatchSize int `yaml:"batch_size" validate:"min=0"`
}

type NodeConfig struct {
	Name   string       `yaml:"-"`
	URL    string       `yaml:"url"    validate:"required,url"`
	Auth   *AuthConfig  `yaml:"auth"`
	Client ClientConfig `yaml:"client"`
}

type AuthConfig struct {
	Type  string `yaml:"type"  validate:"required,oneof=header query bearer basic"`
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type DecoderConfig struct {
	Concurrency int    `yaml:"concurrency" validate:"min=0"`
	MaxLength   uint64 `yaml:"max_length"`
	// PinBlock defaults to true when unset.
	PinBlock *bool `yaml:"pin_block"`
}

type CacheConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Type      enum.KVStoreType `yaml:"type"      validate:"omitempty,oneof=badger"`
	Directory string           `yaml:"directory"`
	InMemory  bool             `yaml:"in_memory"`
	Prefix    string           `yaml:"prefix"`
}

type NatsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"       validate:"omitempty,url"`
	Subject string `yaml:"subject"`
	// JetStream publishes into Stream with deduplication instead of core NATS.
	JetStream bool          `yaml:"jetstream"`
	Stream    string        `yaml:"stream"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	TLS       NatsTLSConfig `yaml:"tls"`
}

type NatsTLSConfig struct {
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	CACert     string `yaml:"ca_cert"`
}

type ContractConfig struct {
	Name    string                 `yaml:"-"`
	Address string                 `yaml:"address" validate:"required,eth_addr"`
	Arrays  map[string]ArrayConfig `yaml:"arrays"  validate:"required,min=1,dive"`
}

// ArrayConfig declares a dynamic array of structs. Slot is the declaration
// slot; with MappingKey set the array is the value of a mapping declared at
// Slot. WordWidth is only needed when fields carry explicit placements.
type ArrayConfig struct {
	Name       string        `yaml:"-"`
	Slot       Literal       `yaml:"slot"        validate:"required"`
	MappingKey Literal       `yaml:"mapping_key"`
	WordWidth  int           `yaml:"word_width"  validate:"min=0"`
	Fields     []FieldConfig `yaml:"fields"      validate:"required,min=1,dive"`
}

type FieldConfig struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required"`
	// Slot and Offset place the field explicitly, as in solc's storageLayout.
	Slot     *int   `yaml:"slot"     validate:"omitempty,min=0"`
	Offset   *int   `yaml:"offset"   validate:"omitempty,min=0,max=31"`
	Decimals int32  `yaml:"decimals" validate:"min=0,max=77"`
	Unit     string `yaml:"unit"`
}

// Literal is a slot or mapping key that may be written as a YAML number or
// a string. Values above 2^64 must be quoted.
type Literal string

func (l *Literal) UnmarshalYAML(b []byte) error {
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		*l = Literal(x)
	case int, int64, uint64:
		*l = Literal(fmt.Sprint(x))
	default:
		return fmt.Errorf("invalid literal %s", strings.TrimSpace(string(b)))
	}
	return nil
}
