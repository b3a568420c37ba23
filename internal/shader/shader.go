// Package shader holds the WGSL sources for the pipeline's GPU stages and
// compiles them to SPIR-V.
package shader

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

//go:embed pack.wgsl
var packSource string

//go:embed decode.wgsl
var decodeSource string

// Shader names.
const (
	Pack   = "pack"
	Decode = "decode"
)

// Compute entry points.
const (
	PackEntry   = "cs_pack"
	DecodeEntry = "cs_decode"
)

// WorkgroupSize is the edge of the square workgroup of both shaders.
const WorkgroupSize = 8

// PackParamsSize and DecodeParamsSize are the byte sizes of the shaders'
// uniform blocks.
const (
	PackParamsSize   = 16
	DecodeParamsSize = 32
)

// ErrUnknownShader is returned by Source and Compile for a name that has no
// embedded shader.
var ErrUnknownShader = errors.New("shader: unknown shader")

// Names lists the embedded shaders.
func Names() []string { return []string{Pack, Decode} }

// Source returns the WGSL source of the named shader.
func Source(name string) (string, error) {
	switch name {
	case Pack:
		return packSource, nil
	case Decode:
		return decodeSource, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownShader, name)
}

// Compile compiles the named shader to SPIR-V words.
func Compile(name string) ([]uint32, error) {
	src, err := Source(name)
	if err != nil {
		return nil, err
	}
	code, err := ToSPIRV(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return code, nil
}

// ToSPIRV compiles WGSL source to SPIR-V words.
func ToSPIRV(wgsl string) ([]uint32, error) {
	b, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	return Words(b), nil
}

// Words converts little-endian SPIR-V bytes to 32-bit words. A trailing
// partial word is ignored.
func Words(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}
