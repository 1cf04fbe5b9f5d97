package render

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/image/draw"

	"github.com/jmylchreest/backdrop/internal/colour"
)

// Step names a device operation, used for fault injection.
type Step string

const (
	StepContext Step = "context"
	StepCompile Step = "compile"
	StepLink    Step = "link"
	StepQuad    Step = "quad"
	StepTexture Step = "texture"
	StepAttach  Step = "attach"
	StepDraw    Step = "draw"
)

// SoftwareOptions configures a SoftwareDevice.
type SoftwareOptions struct {
	// Scale renders internally at 1/Scale resolution before upscaling.
	Scale int
	// Fail makes the named steps return the given error.
	Fail map[Step]error
	// Unavailable makes CreateContext fail as if no GPU were present.
	Unavailable bool
}

// SoftwareDevice implements Device on the CPU. It renders the flow fragment
// program into an RGBA framebuffer.
type SoftwareDevice struct {
	logger hclog.Logger
	opts   SoftwareOptions

	mu       sync.Mutex
	width    int
	height   int
	created  bool
	attached bool
	lost     bool
	next     Handle
	shaders  map[Handle]ShaderKind
	programs map[Handle]bool
	quads    map[Handle]bool
	textures map[Handle][]texel
	low      *image.RGBA
	frame    *image.RGBA
	draws    int
}

// NewSoftwareDevice creates a device. Contexts are created lazily by CreateContext.
func NewSoftwareDevice(logger hclog.Logger, opts SoftwareOptions) *SoftwareDevice {
	if opts.Scale <= 0 {
		opts.Scale = 4
	}
	fail := make(map[Step]error, len(opts.Fail))
	for k, v := range opts.Fail {
		fail[k] = v
	}
	opts.Fail = fail
	return &SoftwareDevice{
		logger:   logger.Named("software-gpu"),
		opts:     opts,
		shaders:  make(map[Handle]ShaderKind),
		programs: make(map[Handle]bool),
		quads:    make(map[Handle]bool),
		textures: make(map[Handle][]texel),
	}
}

// FailAt injects a failure into step. A nil error clears it.
func (d *SoftwareDevice) FailAt(step Step, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.opts.Fail, step)
		return
	}
	d.opts.Fail[step] = err
}

// LoseContext simulates the GPU dropping the context; every later call fails.
func (d *SoftwareDevice) LoseContext() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
}

// Draws returns the number of successful draw calls.
func (d *SoftwareDevice) Draws() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draws
}

// Attached reports whether the framebuffer is attached to the output surface.
func (d *SoftwareDevice) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

// Resources returns the number of live GPU handles.
func (d *SoftwareDevice) Resources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shaders) + len(d.programs) + len(d.quads) + len(d.textures)
}

func (d *SoftwareDevice) check(step Step) error {
	if d.lost {
		return ErrContextLost
	}
	if err, ok := d.opts.Fail[step]; ok {
		return fmt.Errorf("%s: %w", step, err)
	}
	if step != StepContext && !d.created {
		return fmt.Errorf("%s: %w", step, ErrDeviceUnavailable)
	}
	return nil
}

func (d *SoftwareDevice) handle() Handle {
	d.next++
	return d.next
}

// CreateContext allocates the framebuffers.
func (d *SoftwareDevice) CreateContext(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opts.Unavailable {
		return ErrDeviceUnavailable
	}
	if err := d.check(StepContext); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface %dx%d: %w", width, height, ErrDeviceUnavailable)
	}
	d.width, d.height = width, height
	lw, lh := max(1, width/d.opts.Scale), max(1, height/d.opts.Scale)
	d.low = image.NewRGBA(image.Rect(0, 0, lw, lh))
	d.frame = image.NewRGBA(image.Rect(0, 0, width, height))
	d.created = true
	d.logger.Debug("context created", "width", width, "height", height, "internal", fmt.Sprintf("%dx%d", lw, lh))
	return nil
}

// CompileShader validates the source and returns a shader handle.
func (d *SoftwareDevice) CompileShader(kind ShaderKind, source string) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(StepCompile); err != nil {
		return 0, err
	}
	if !strings.Contains(source, "void main") {
		return 0, fmt.Errorf("%s shader has no entry point: %w", kind, ErrShaderCompile)
	}
	h := d.handle()
	d.shaders[h] = kind
	return h, nil
}

// LinkProgram links a vertex and a fragment shader.
func (d *SoftwareDevice) LinkProgram(vertex, fragment Handle) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(StepLink); err != nil {
		return 0, err
	}
	if k, ok := d.shaders[vertex]; !ok || k != VertexShader {
		return 0, fmt.Errorf("vertex handle %d: %w", vertex, ErrProgramLink)
	}
	if k, ok := d.shaders[fragment]; !ok || k != FragmentShader {
		return 0, fmt.Errorf("fragment handle %d: %w", fragment, ErrProgramLink)
	}
	h := d.handle()
	d.programs[h] = true
	return h, nil
}

// CreateQuad creates the full-screen geometry.
func (d *SoftwareDevice) CreateQuad() (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(StepQuad); err != nil {
		return 0, err
	}
	h := d.handle()
	d.quads[h] = true
	return h, nil
}

// CreateGradientTexture bakes stops into a new 1-D texture.
func (d *SoftwareDevice) CreateGradientTexture(stops []colour.GradientStop, width int) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(StepTexture); err != nil {
		return 0, err
	}
	if len(stops) == 0 {
		return 0, fmt.Errorf("empty gradient: %w", ErrDeviceUnavailable)
	}
	h := d.handle()
	d.textures[h] = bakeTexture(stops, width)
	return h, nil
}

// UpdateGradientTexture re-bakes an existing texture.
func (d *SoftwareDevice) UpdateGradientTexture(texture Handle, stops []colour.GradientStop) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(StepTexture); err != nil {
		return err
	}
	tex, ok := d.textures[texture]
	if !ok {
		return fmt.Errorf("unknown texture %d", texture)
	}
	d.textures[texture] = bakeTexture(stops, len(tex))
	return nil
}

// Attach connects the framebuffer to the output surface.
func (d *SoftwareDevice) Attach() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(StepAttach); err != nil {
		return err
	}
	d.attached = true
	return nil
}

// Draw runs the flow program at the internal resolution and upscales the result.
func (d *SoftwareDevice) Draw(program, quad, texture Handle, u Uniforms) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(StepDraw); err != nil {
		return err
	}
	if !d.programs[program] || !d.quads[quad] {
		return fmt.Errorf("draw with unlinked program %d / quad %d: %w", program, quad, ErrProgramLink)
	}
	tex, ok := d.textures[texture]
	if !ok {
		return fmt.Errorf("draw with unknown texture %d", texture)
	}

	renderFlow(d.low, u, tex)
	draw.BiLinear.Scale(d.frame, d.frame.Bounds(), d.low, d.low.Bounds(), draw.Src, nil)
	d.draws++
	d.logger.Trace("frame drawn", "time", u.Time, "flow", u.FlowStrength)
	return nil
}

// Frame returns a copy of the last drawn frame, or nil before the first draw.
func (d *SoftwareDevice) Frame() *image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame == nil || d.draws == 0 {
		return nil
	}
	out := image.NewRGBA(d.frame.Bounds())
	copy(out.Pix, d.frame.Pix)
	return out
}

// Release frees every handle and detaches the surface. It is idempotent.
func (d *SoftwareDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.shaders)
	clear(d.programs)
	clear(d.quads)
	clear(d.textures)
	d.attached = false
	d.created = false
	d.low = nil
}
