// Package config handles ramclass.toml VM configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/daimatz/ramclass/pkg/alloc"
)

// Config is the VM configuration.
type Config struct {
	Allocator Allocator `toml:"allocator"`
	Loading   Loading   `toml:"loading"`
	Log       Log       `toml:"log"`
	Classpath Classpath `toml:"classpath"`
}

// Allocator configures per-loader fragment allocators.
type Allocator struct {
	SegmentIncrement uint64 `toml:"segment-increment"`
	TinyLimit        uint64 `toml:"tiny-limit"`
	LargeLimit       uint64 `toml:"large-limit"`
	// MaxBytes caps the segment memory of the whole VM; 0 means unlimited.
	MaxBytes uint64 `toml:"max-bytes"`
	UseMmap  bool   `toml:"use-mmap"`
}

// Loading configures class loading.
type Loading struct {
	MaxStack int `toml:"max-stack"`
	// ArrayInterfaces are the interfaces every array class implements.
	ArrayInterfaces []string `toml:"array-interfaces"`
}

// Log configures the global logger.
type Log struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// Classpath lists class sources for the CLI.
type Classpath struct {
	Dirs []string `toml:"dirs"`
	Jmod string   `toml:"jmod"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Allocator: Allocator{
			SegmentIncrement: alloc.DefaultSegmentIncrement,
			TinyLimit:        alloc.DefaultTinyLimit,
			LargeLimit:       alloc.DefaultLargeLimit,
			UseMmap:          true,
		},
		Loading: Loading{
			MaxStack:        1024,
			ArrayInterfaces: []string{"java/lang/Cloneable", "java/io/Serializable"},
		},
		Log: Log{Level: "off"},
	}
}

// Load reads a TOML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes TOML text over the defaults. name is used in error messages.
func Parse(data []byte, name string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("config: parse error in %s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), name)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", name, err)
	}
	return c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	a := c.Allocator
	if a.SegmentIncrement < alloc.WordSize {
		return fmt.Errorf("allocator.segment-increment must be at least %d, got %d", alloc.WordSize, a.SegmentIncrement)
	}
	if a.TinyLimit <= alloc.WordSize || a.TinyLimit > a.LargeLimit {
		return fmt.Errorf("allocator.tiny-limit %d must lie in (%d, large-limit %d]", a.TinyLimit, alloc.WordSize, a.LargeLimit)
	}
	if c.Loading.MaxStack <= 0 {
		return fmt.Errorf("loading.max-stack must be positive, got %d", c.Loading.MaxStack)
	}
	return nil
}

// AllocatorOptions converts the allocator section to alloc.Options.
func (c *Config) AllocatorOptions(src alloc.Source) alloc.Options {
	return alloc.Options{
		TinyLimit:        c.Allocator.TinyLimit,
		LargeLimit:       c.Allocator.LargeLimit,
		SegmentIncrement: c.Allocator.SegmentIncrement,
		Source:           src,
	}
}
