/*
Package config parses application configuration sources.

# Overview

Sources are YAML (JSON is accepted as a YAML subset). Parsing keeps the
yaml.v3 node tree so every value remembers its line and column; errors
raised while interpreting a value point back at it:

	app, err := config.ParseApplication("shop.yaml", data)
	if err != nil {
	    // shop.yaml:12:7: flows: ...
	}

An application source has four top-level keys:

	name: shop
	use:
	  - jsonpath
	  - sqlite: {path: shop.db}
	network:
	  - {port: 8080, protocol: http}
	flows:
	  main:
	    - put: {values: {x: 1}}

# Typed Decoding

Node.Decode decodes into a struct with yaml tags. Types implementing
Validator are validated after decoding:

	type sleepConfig struct {
	    For config.Duration `yaml:"for"`
	}

	func (c sleepConfig) Validate() error { ... }

	var cfg sleepConfig
	if err := node.Decode(&cfg); err != nil {
	    return err // positioned *config.Error
	}

# Collecting Errors

A Collector gathers every configuration problem of a source so they can be
reported together instead of one at a time.
*/
package config
