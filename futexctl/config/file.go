// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// readFile decodes a flat table of flag names to values from path. The
// format is chosen by the file extension.
func readFile(path string) (map[string]any, error) {
	values := make(map[string]any)
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, &values); err != nil {
			return nil, fmt.Errorf("decoding %q: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("decoding %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension %q, must be .toml, .yaml or .yml", ext)
	}
	return values, nil
}

// ApplyFile sets every flag named in the config file at path, unless the
// flag was already set on the command line.
func ApplyFile(flagSet *flag.FlagSet, path string) error {
	values, err := readFile(path)
	if err != nil {
		return err
	}

	explicit := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "config" {
			return fmt.Errorf("%q: config files cannot include other config files", path)
		}
		if flagSet.Lookup(name) == nil {
			return fmt.Errorf("%q: unknown flag %q", path, name)
		}
		if explicit[name] {
			continue
		}
		if err := flagSet.Set(name, fmt.Sprint(values[name])); err != nil {
			return fmt.Errorf("%q: %w", path, err)
		}
	}
	return nil
}
