//go:build sdl

package sdlout

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/user/playcore/pkg/adapters/frameclock"
	"github.com/user/playcore/pkg/adapters/logger"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// WindowOptions configures a Window.
type WindowOptions struct {
	Title  string
	Width  int32 // default 1280
	Height int32 // default 720
	FPS    float64
	// Commands receives the playback commands bound to keys. Commands are
	// dropped when the channel is full. Optional.
	Commands chan<- pipeline.Command
	Logger   ports.Logger
}

// Window is a PresentationSink and frame driver backed by an SDL2 window.
//
// All SDL video calls happen on the goroutine running Run: frame callbacks
// run there, so Present does too.
type Window struct {
	opts   WindowOptions
	frames *frameclock.Clock
	log    ports.Logger

	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	texW     int32
	texH     int32
	vsync    bool

	mu     sync.Mutex
	shown  int
	closed bool
}

// NewWindow creates a Window. The SDL window itself is created by Run.
func NewWindow(opts WindowOptions) *Window {
	if opts.Title == "" {
		opts.Title = "playcore"
	}
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	log := logger.OrNoop(opts.Logger)
	return &Window{
		opts:   opts,
		frames: frameclock.New(nil, opts.FPS),
		log:    log,
	}
}

// RequestFrame implements ports.FrameScheduler.
func (w *Window) RequestFrame(fn func()) func() {
	return w.frames.RequestFrame(fn)
}

// Run opens the window and runs the frame loop until ctx is done or the
// window is closed, in which case it returns ErrClosed.
func (w *Window) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := w.open(); err != nil {
		return err
	}
	defer w.destroy()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				return ErrClosed
			case *sdl.KeyboardEvent:
				if e.Type == sdl.KEYDOWN && e.Repeat == 0 {
					w.key(e.Keysym.Sym)
				}
			}
		}

		start := time.Now()
		w.frames.Tick()
		w.draw()
		if !w.vsync {
			if rest := w.frames.Interval() - time.Since(start); rest > 0 {
				sdl.Delay(uint32(rest / time.Millisecond))
			}
		}
	}
}

func (w *Window) open() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return &pipeline.InitializationError{Component: "presentation sink", Err: err}
	}
	window, err := sdl.CreateWindow(w.opts.Title, sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		w.opts.Width, w.opts.Height, sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return &pipeline.InitializationError{Component: "presentation sink", Err: err}
	}

	// Hardware acceleration with vsync first, software otherwise.
	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		w.log.Warn("Hardware renderer unavailable, using software: %v", err)
		renderer, err = sdl.CreateRenderer(window, -1, sdl.RENDERER_SOFTWARE)
		if err != nil {
			window.Destroy()
			sdl.QuitSubSystem(sdl.INIT_VIDEO)
			return &pipeline.InitializationError{Component: "presentation sink", Err: err}
		}
	}
	if info, err := renderer.GetInfo(); err == nil {
		w.vsync = info.Flags&sdl.RENDERER_PRESENTVSYNC != 0
		w.log.Info("Renderer %s (vsync=%v)", info.Name, w.vsync)
	}

	w.window, w.renderer = window, renderer
	return nil
}

func (w *Window) destroy() {
	if w.texture != nil {
		_ = w.texture.Destroy()
		w.texture = nil
	}
	if w.renderer != nil {
		_ = w.renderer.Destroy()
		w.renderer = nil
	}
	if w.window != nil {
		_ = w.window.Destroy()
		w.window = nil
	}
	sdl.QuitSubSystem(sdl.INIT_VIDEO)
}

// keyCommands binds keys to playback commands.
var keyCommands = map[sdl.Keycode]pipeline.Command{
	sdl.K_SPACE:    pipeline.CommandTogglePause,
	sdl.K_LEFT:     pipeline.CommandSeekBack,
	sdl.K_RIGHT:    pipeline.CommandSeekForward,
	sdl.K_PAGEDOWN: pipeline.CommandSeekBackLong,
	sdl.K_PAGEUP:   pipeline.CommandSeekForwardLong,
	sdl.K_UP:       pipeline.CommandVolumeUp,
	sdl.K_DOWN:     pipeline.CommandVolumeDown,
	sdl.K_m:        pipeline.CommandToggleMute,
	sdl.K_l:        pipeline.CommandToggleLoop,
}

func (w *Window) key(sym sdl.Keycode) {
	cmd, ok := keyCommands[sym]
	if !ok || w.opts.Commands == nil {
		return
	}
	select {
	case w.opts.Commands <- cmd:
	default:
	}
}

// Present uploads the picture into the streaming texture.
func (w *Window) Present(pic *pipeline.Picture) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return pipeline.ErrDisposed
	}
	if w.renderer == nil {
		return fmt.Errorf("present: window not running")
	}

	width, height := int32(pic.Width), int32(pic.Height)
	if w.texture == nil || width != w.texW || height != w.texH {
		if w.texture != nil {
			_ = w.texture.Destroy()
		}
		tex, err := w.renderer.CreateTexture(uint32(sdl.PIXELFORMAT_RGBA32), sdl.TEXTUREACCESS_STREAMING, width, height)
		if err != nil {
			w.texture = nil
			return fmt.Errorf("create texture: %w", err)
		}
		w.texture, w.texW, w.texH = tex, width, height
	}

	pixels, pitch, err := w.texture.Lock(nil)
	if err != nil {
		return fmt.Errorf("lock texture: %w", err)
	}
	row := pic.Width * 4
	for y := 0; y < pic.Height; y++ {
		copy(pixels[y*pitch:y*pitch+row], pic.Pix[y*pic.Stride:y*pic.Stride+row])
	}
	w.texture.Unlock()

	w.mu.Lock()
	w.shown++
	w.mu.Unlock()
	return nil
}

func (w *Window) draw() {
	_ = w.renderer.SetDrawColor(0, 0, 0, 255)
	_ = w.renderer.Clear()
	if w.texture != nil {
		bw, bh := w.window.GetSize()
		x, y, dw, dh := fit(w.texW, w.texH, bw, bh)
		_ = w.renderer.Copy(w.texture, nil, &sdl.Rect{X: x, Y: y, W: dw, H: dh})
	}
	w.renderer.Present()
}

// Close stops accepting pictures.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Shown returns the number of pictures uploaded so far.
func (w *Window) Shown() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shown
}

var _ ports.PresentationSink = (*Window)(nil)
