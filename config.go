package pix2pix

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the load-time configuration of a Pipeline.
type Config struct {
	// InferenceResolution is the side of the square model input.
	InferenceResolution int `yaml:"inference_resolution"`

	// Channels is the packed channel count: 1, 3 or 4.
	Channels int `yaml:"channels"`

	// Layout is the tensor memory order for both input and RGB output.
	Layout Layout `yaml:"layout"`

	// FlipInputX and FlipInputY mirror inference coordinates when they are
	// mapped back to the screen (see ScreenMapper).
	FlipInputX bool `yaml:"flip_input_x"`
	FlipInputY bool `yaml:"flip_input_y"`

	// FlipOutputX and FlipOutputY mirror the decoded image.
	FlipOutputX bool `yaml:"flip_output_x"`
	FlipOutputY bool `yaml:"flip_output_y"`

	// Grayscale decodes one value per pixel instead of three.
	Grayscale bool `yaml:"grayscale"`

	// HideRenderLayer moves the hide targets to HiddenLayer while the
	// frame is captured.
	HideRenderLayer bool `yaml:"hide_render_layer"`
	HiddenLayer     int  `yaml:"hidden_layer"`

	// Continuous requests a new cycle on every frame the pipeline is idle.
	Continuous bool `yaml:"continuous"`

	// CameraIsMain marks the capture camera as the primary display camera.
	CameraIsMain bool `yaml:"camera_is_main"`

	// MatchMainCamera copies the primary camera's lens before capturing
	// with a secondary camera.
	MatchMainCamera bool `yaml:"match_main_camera"`

	// DisplayOutput decodes the output and binds it to the material.
	DisplayOutput bool `yaml:"display_output"`

	// MaterialProperty is the texture slot the output is bound to.
	MaterialProperty string `yaml:"material_property"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		InferenceResolution: 512,
		Channels:            3,
		Layout:              LayoutNHWC,
		FlipInputY:          true,
		FlipOutputX:         true,
		HideRenderLayer:     true,
		HiddenLayer:         LayerHidden,
		CameraIsMain:        true,
		DisplayOutput:       true,
		MaterialProperty:    "_MainTex",
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.InferenceResolution <= 0 {
		return fmt.Errorf("%w: inference_resolution must be positive, got %d", ErrInvalidConfig, c.InferenceResolution)
	}
	if c.Channels != 1 && c.Channels != 3 && c.Channels != 4 {
		return fmt.Errorf("%w: channels must be 1, 3 or 4, got %d", ErrInvalidConfig, c.Channels)
	}
	if c.Layout != LayoutNHWC && c.Layout != LayoutNCHW {
		return fmt.Errorf("%w: unknown layout %d", ErrInvalidConfig, c.Layout)
	}
	if c.HiddenLayer < 0 || c.HiddenLayer > 31 {
		return fmt.Errorf("%w: hidden_layer must be in [0,31], got %d", ErrInvalidConfig, c.HiddenLayer)
	}
	if c.DisplayOutput && c.MaterialProperty == "" {
		return fmt.Errorf("%w: material_property is required when display_output is set", ErrInvalidConfig)
	}
	return nil
}

// DecodeParams returns the decoder settings implied by the configuration.
func (c Config) DecodeParams() DecodeParams {
	return DecodeParams{
		Grayscale: c.Grayscale,
		FlipX:     c.FlipOutputX,
		FlipY:     c.FlipOutputY,
		Layout:    c.Layout,
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates it.
// Keys missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// UnmarshalYAML decodes a layout name.
func (l *Layout) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseLayout(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalYAML encodes a layout as its name.
func (l Layout) MarshalYAML() (any, error) {
	return l.String(), nil
}
