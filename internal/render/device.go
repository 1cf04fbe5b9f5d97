package render

import (
	"errors"
	"image"

	"github.com/jmylchreest/backdrop/internal/colour"
)

// Device errors.
var (
	ErrDeviceUnavailable = errors.New("gpu device unavailable")
	ErrContextLost       = errors.New("gpu context lost")
	ErrShaderCompile     = errors.New("shader compilation failed")
	ErrProgramLink       = errors.New("shader program link failed")
)

// Handle identifies a GPU resource owned by a Device.
type Handle uint32

// ShaderKind is the pipeline stage of a shader.
type ShaderKind int

const (
	VertexShader ShaderKind = iota
	FragmentShader
)

func (k ShaderKind) String() string {
	if k == VertexShader {
		return "vertex"
	}
	return "fragment"
}

// Uniforms are the per-frame inputs of the flow fragment program.
type Uniforms struct {
	Time         float64
	FlowStrength float64
	NoiseScale   float64
	BlurExponent float64
	BlurMax      float64
	Vignette     float64
	WaveCenter   [2]float64
	WaveHeight   [2]float64
	WaveOffset   [2]float64
}

// DefaultUniforms returns the resting state of the flow program.
func DefaultUniforms() Uniforms {
	return Uniforms{
		FlowStrength: 1.0,
		NoiseScale:   1.4,
		BlurExponent: 1.6,
		BlurMax:      0.12,
		Vignette:     0.35,
		WaveCenter:   [2]float64{0.35, 0.7},
		WaveHeight:   [2]float64{0.18, 0.12},
		WaveOffset:   [2]float64{0, 0.5},
	}
}

// Device is the GPU contract used by the shader strategy. Every step may fail;
// callers treat any error as a reason to degrade.
type Device interface {
	CreateContext(width, height int) error
	CompileShader(kind ShaderKind, source string) (Handle, error)
	LinkProgram(vertex, fragment Handle) (Handle, error)
	CreateQuad() (Handle, error)
	CreateGradientTexture(stops []colour.GradientStop, width int) (Handle, error)
	UpdateGradientTexture(texture Handle, stops []colour.GradientStop) error
	Draw(program, quad, texture Handle, u Uniforms) error
	Attach() error
	Release()
}

// FrameReader is implemented by devices whose output can be read back.
type FrameReader interface {
	Frame() *image.RGBA
}
