package codec

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/pithecene-io/framewrap/types"
)

// MaxPaddingSize is the largest accepted padding size (1 MiB).
const MaxPaddingSize = 1 << 20

// ErrConfigOutOfRange is matched by errors.Is for rejected padding sizes.
var ErrConfigOutOfRange = errors.New("padding size out of range")

// ConfigError reports a rejected configuration update.
// The previous value stays in effect.
type ConfigError struct {
	Kind  types.MediaKind
	Value int64
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s padding size %d: %v (must be 0..%d)", e.Kind, e.Value, ErrConfigOutOfRange, MaxPaddingSize)
}

// Is reports whether target is ErrConfigOutOfRange.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigOutOfRange
}

// ErrorKind maps the error to the pipeline error taxonomy.
func (e *ConfigError) ErrorKind() types.ErrorKind {
	return types.ErrorKindConfigOutOfRange
}

// Config holds the per-kind padding sizes of a pipeline.
//
// Each field is written atomically; readers see some coherent value of the
// field current at read time. There is no cross-field consistency: updating
// audio never touches video. A Config may be shared between the encode and
// decode pipelines of one call.
type Config struct {
	audio atomic.Int64
	video atomic.Int64
}

// NewConfig creates a Config with both padding sizes set to 0.
func NewConfig() *Config {
	return &Config{}
}

// PaddingSize returns the current padding size for kind.
// An unset kind resolves to audio.
func (c *Config) PaddingSize(kind types.MediaKind) int {
	return int(c.field(kind).Load())
}

// SetPaddingSize updates the padding size for kind.
// Returns *ConfigError when value is negative or above MaxPaddingSize.
func (c *Config) SetPaddingSize(kind types.MediaKind, value int64) error {
	if value < 0 || value > MaxPaddingSize {
		return &ConfigError{Kind: kind.OrAudio(), Value: value}
	}
	c.field(kind).Store(value)
	return nil
}

// Snapshot returns the current padding sizes keyed by kind.
func (c *Config) Snapshot() map[types.MediaKind]int {
	return map[types.MediaKind]int{
		types.MediaKindAudio: int(c.audio.Load()),
		types.MediaKindVideo: int(c.video.Load()),
	}
}

func (c *Config) field(kind types.MediaKind) *atomic.Int64 {
	if kind.OrAudio() == types.MediaKindVideo {
		return &c.video
	}
	return &c.audio
}
