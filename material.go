package pix2pix

// Material is a display material with named texture slots. The pipeline
// binds its output texture once per completed cycle.
type Material interface {
	SetTexture(name string, tex *Texture) error
}

// MaterialFunc adapts a function to the Material interface.
type MaterialFunc func(name string, tex *Texture) error

// SetTexture implements Material.
func (f MaterialFunc) SetTexture(name string, tex *Texture) error {
	return f(name, tex)
}

// Materials fans one binding out to several materials, stopping at the
// first error.
type Materials []Material

// SetTexture implements Material.
func (ms Materials) SetTexture(name string, tex *Texture) error {
	for _, m := range ms {
		if err := m.SetTexture(name, tex); err != nil {
			return err
		}
	}
	return nil
}
