// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Builder layers YAML overlays on top of a base configuration
type Builder struct {
	overlays []overlay
	Config   *Config
}

type overlay struct {
	source string
	data   []byte
}

// Use sets the base configuration; DefaultConfig is used when never called
func (b *Builder) Use(c *Config) *Builder {
	b.Config = c
	return b
}

// Merge adds YAML documents to be merged into the configuration
func (b *Builder) Merge(yamls ...string) *Builder {
	for _, y := range yamls {
		b.overlays = append(b.overlays, overlay{source: "inline", data: []byte(y)})
	}
	return b
}

// MergeFile adds YAML files to be merged into the configuration. Files are
// read when Build is called
func (b *Builder) MergeFile(paths ...string) *Builder {
	for _, p := range paths {
		b.overlays = append(b.overlays, overlay{source: p})
	}
	return b
}

// Build merges all overlays, in the order they were added, into the base
// configuration and validates the result
func (b *Builder) Build() (*Config, error) {
	if b.Config == nil {
		b.Config = DefaultConfig()
	}

	var errs error
	for _, o := range b.overlays {
		data := o.data
		if data == nil {
			read, err := os.ReadFile(o.source)
			if err != nil {
				errs = errors.Join(errs, fmt.Errorf("failed to read config overlay: %w", err))
				continue
			}
			data = read
		}

		additional := &Config{}
		if err := yaml.Unmarshal(data, additional); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to parse YAML from %s: %w", o.source, err))
			continue
		}

		if err := mergo.Merge(b.Config, additional, mergo.WithOverride, mergo.WithTransformers(boolPtrTransformer{})); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to merge config from %s: %w", o.source, err))
			continue
		}
	}

	if errs != nil {
		return nil, errs
	}

	b.Config.sanitize()
	if err := b.Config.Validate(); err != nil {
		return nil, err
	}
	return b.Config, nil
}

// boolPtrTransformer lets an overlay set a *bool to false, which mergo would
// otherwise treat as an empty value and skip
type boolPtrTransformer struct{}

func (t boolPtrTransformer) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf((*bool)(nil)) {
		return nil
	}

	return func(dst, src reflect.Value) error {
		if src.IsNil() {
			return nil
		}
		if dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}
