// ABOUTME: PortAudio capture engine feeding the broadcast pipeline
// ABOUTME: Opens the selected input device and pushes 16-bit PCM frames to a sink
package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/hearcast/hearcast/internal/audio"
)

var (
	// ErrDeviceLost means the driver reported an unrecoverable error or the
	// device disappeared. The engine stops; restarting is the caller's call.
	ErrDeviceLost = errors.New("capture: device lost")

	// ErrUnsupported means the device could not be opened in any sample
	// format we can down-convert to 16-bit PCM.
	ErrUnsupported = errors.New("capture: device format unsupported")

	// ErrDeviceNotFound means the configured device name matched nothing.
	ErrDeviceNotFound = errors.New("capture: device not found")
)

// Status is the engine's lifecycle state.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusLost
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Sink receives the live frame sequence. Frame is called from the capture
// goroutine with a buffer that is only valid for the duration of the call;
// Lost is called at most once, after which no more frames arrive.
type Sink interface {
	Frame(p []byte)
	Lost(err error)
}

// Config selects and shapes the capture device.
type Config struct {
	// Device is the PortAudio device name; empty means the default input.
	Device string
	// SampleRate of 0 means the device's native rate.
	SampleRate int
	// Channels to capture; clamped to what the device offers.
	Channels int
	// FramesPerBuffer is the driver read granularity; 0 means 1024.
	FramesPerBuffer int
}

// Device describes an input-capable audio device.
type Device struct {
	Name       string
	Channels   int
	SampleRate int
	Default    bool
}

// Engine pulls interleaved samples from one device and pushes 16-bit PCM to
// the sink. The read loop runs on its own goroutine so device cadence is
// never coupled to network consumers.
type Engine struct {
	cfg    Config
	sink   Sink
	log    zerolog.Logger
	format audio.Format

	mu       sync.Mutex
	status   Status
	stopping bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an engine. The sink must be registered here, before Start, so
// no frame is ever dropped on the floor between open and subscribe.
func New(cfg Config, sink Sink, log zerolog.Logger) *Engine {
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 1024
	}
	return &Engine{
		cfg:      cfg,
		sink:     sink,
		log:      log.With().Str("component", "capture").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start opens the device and begins delivering frames. The negotiated format
// is available from Format once Start returns nil.
func (e *Engine) Start() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	dev, err := e.findDevice()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	channels := e.cfg.Channels
	if channels <= 0 || channels > dev.MaxInputChannels {
		channels = dev.MaxInputChannels
	}
	if channels > 2 {
		channels = 2
	}
	rate := e.cfg.SampleRate
	if rate <= 0 {
		rate = int(dev.DefaultSampleRate)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(rate),
		FramesPerBuffer: e.cfg.FramesPerBuffer,
	}

	e.format = audio.Format{SampleRate: rate, Channels: channels, BitDepth: 16}

	stream, convert, label, err := openPreferred(params, e.cfg.FramesPerBuffer*channels)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting stream: %w", err)
	}
	e.setStatus(StatusRunning)
	e.log.Info().Str("device", dev.Name).Str("driver_format", label).Stringer("format", e.format).Msg("capture started")
	e.wg.Add(1)
	go e.run(stream, convert)
	return nil
}

// openStream is swapped in tests to observe format negotiation.
var openStream = func(params portaudio.StreamParameters, buf interface{}) (*portaudio.Stream, error) {
	return portaudio.OpenStream(params, buf)
}

// openPreferred negotiates the driver sample format. int16 needs no
// conversion; float32 and int32 devices are down-converted to 16-bit PCM on
// every frame.
func openPreferred(params portaudio.StreamParameters, samples int) (*portaudio.Stream, func([]byte) []byte, string, error) {
	int16Buf := make([]int16, samples)
	stream, i16err := openStream(params, int16Buf)
	if i16err == nil {
		return stream, func(out []byte) []byte { return audio.Int16Bytes(int16Buf, out) }, "int16", nil
	}

	float32Buf := make([]float32, samples)
	stream, f32err := openStream(params, float32Buf)
	if f32err == nil {
		return stream, func(out []byte) []byte { return audio.Float32Bytes(float32Buf, out) }, "float32", nil
	}

	int32Buf := make([]int32, samples)
	stream, i32err := openStream(params, int32Buf)
	if i32err == nil {
		return stream, func(out []byte) []byte { return audio.Int32Bytes(int32Buf, out) }, "int32", nil
	}

	return nil, nil, "", fmt.Errorf("%w: int16 (%v), float32 (%v), int32 (%v)", ErrUnsupported, i16err, f32err, i32err)
}

func (e *Engine) findDevice() (*portaudio.DeviceInfo, error) {
	if e.cfg.Device == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == e.cfg.Device && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, e.cfg.Device)
}

func (e *Engine) run(stream *portaudio.Stream, convert func(dst []byte) []byte) {
	defer e.wg.Done()
	defer e.teardown(stream)

	var out []byte
	for {
		select {
		case <-e.stopChan:
			return
		default:
		}
		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				e.log.Debug().Msg("input overflow, frame dropped by driver")
				continue
			}
			e.fail(err)
			return
		}
		out = convert(out)
		e.sink.Frame(out)
	}
}

func (e *Engine) teardown(stream *portaudio.Stream) {
	stream.Close()
	portaudio.Terminate()
}

func (e *Engine) fail(cause error) {
	e.mu.Lock()
	stopping := e.stopping
	e.status = StatusLost
	e.mu.Unlock()
	if stopping {
		return
	}
	err := fmt.Errorf("%w: %v", ErrDeviceLost, cause)
	e.log.Error().Err(err).Msg("capture failed")
	e.sink.Lost(err)
}

// Stop halts the read loop and releases the device. Safe to call more than
// once; does not fire the sink's Lost callback.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopping = true
	e.mu.Unlock()

	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
	e.wg.Wait()
	e.setStatus(StatusIdle)
}

// Format returns the negotiated stream format. Valid after Start.
func (e *Engine) Format() audio.Format {
	return e.format
}

// Status reports the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Devices lists input-capable devices, for the CLI and the UI collaborator.
func Devices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []Device
	for _, d := range all {
		if d.MaxInputChannels == 0 {
			continue
		}
		out = append(out, Device{
			Name:       d.Name,
			Channels:   d.MaxInputChannels,
			SampleRate: int(d.DefaultSampleRate),
			Default:    d == def,
		})
	}
	return out, nil
}
