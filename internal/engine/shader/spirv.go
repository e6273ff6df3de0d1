// Package shader compiles portable shader sources into binary modules.
//
// WGSL is compiled to SPIR-V with naga, entirely in Go, so the result can
// be handed to any device that accepts SPIR-V (GL_ARB_gl_spirv here).
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// ErrInvalidSPIRV is returned for byte slices that are not a SPIR-V module.
var ErrInvalidSPIRV = errors.New("shader: invalid SPIR-V module")

// CompileWGSL compiles WGSL source to a little-endian SPIR-V module.
func CompileWGSL(src string) ([]byte, error) {
	if src == "" {
		return nil, fmt.Errorf("compile WGSL: empty source")
	}
	spv, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile WGSL: %w", err)
	}
	if err := ValidateSPIRV(spv); err != nil {
		return nil, err
	}
	return spv, nil
}

// ValidateSPIRV checks the module size and header magic.
func ValidateSPIRV(spv []byte) error {
	if len(spv) < 20 || len(spv)%4 != 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSPIRV, len(spv))
	}
	if magic := binary.LittleEndian.Uint32(spv); magic != SPIRVMagic {
		return fmt.Errorf("%w: magic 0x%08X", ErrInvalidSPIRV, magic)
	}
	return nil
}

// Words reinterprets a SPIR-V module as 32-bit words.
func Words(spv []byte) []uint32 {
	words := make([]uint32, len(spv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spv[i*4:])
	}
	return words
}
