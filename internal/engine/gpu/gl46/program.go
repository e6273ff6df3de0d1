package gl46

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
)

// CompileProgram compiles vertex and fragment shaders and links them into a program.
func CompileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	vertShader, err := compileShader(vertexSrc, gl.VERTEX_SHADER, "vertex")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vertShader)

	fragShader, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER, "fragment")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fragShader)

	return link(vertShader, fragShader)
}

func compileComputeGLSL(source string) (uint32, error) {
	cs, err := compileShader(source, gl.COMPUTE_SHADER, "compute")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(cs)
	return link(cs)
}

// compileComputeSPIRV loads a SPIR-V module and specializes entryPoint.
func compileComputeSPIRV(spv []byte, entryPoint string) (uint32, error) {
	if entryPoint == "" {
		entryPoint = "main"
	}
	cs := gl.CreateShader(gl.COMPUTE_SHADER)
	gl.ShaderBinary(1, &cs, gl.SHADER_BINARY_FORMAT_SPIR_V, unsafe.Pointer(&spv[0]), int32(len(spv)))
	gl.SpecializeShader(cs, gl.Str(entryPoint+"\x00"), 0, nil, nil)

	var status int32
	gl.GetShaderiv(cs, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		log := shaderLog(cs)
		gl.DeleteShader(cs)
		return 0, fmt.Errorf("specialize %q: %s", entryPoint, log)
	}
	defer gl.DeleteShader(cs)
	return link(cs)
}

// compileShader compiles a single shader of the given type.
func compileShader(source string, shaderType uint32, name string) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		log := shaderLog(shader)
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("%s shader: %s", name, log)
	}

	return shader, nil
}

func link(shaders ...uint32) (uint32, error) {
	program := gl.CreateProgram()
	for _, s := range shaders {
		gl.AttachShader(program, s)
	}
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLen)
		log := make([]byte, max(logLen, 1))
		gl.GetProgramInfoLog(program, logLen, nil, &log[0])
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link: %s", string(log))
	}
	for _, s := range shaders {
		gl.DetachShader(program, s)
	}
	return program, nil
}

func shaderLog(shader uint32) string {
	var logLen int32
	gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
	log := make([]byte, max(logLen, 1))
	gl.GetShaderInfoLog(shader, logLen, nil, &log[0])
	return string(log)
}
