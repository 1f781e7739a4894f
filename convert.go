package av

// Resampler converts audio frames between two formats fixed at
// construction. It never allocates: out must be an allocated frame in the
// output format with enough capacity.
type Resampler struct {
	ctx     ResampleContext
	in, out AudioSpec
}

// NewResampler binds a resampler to the given input and output formats.
func NewResampler(eng ConvertEngine, inChannels int, inFormat SampleFormat, inRate int,
	outChannels int, outFormat SampleFormat, outRate int) (*Resampler, error) {
	in := AudioSpec{Channels: inChannels, SampleFormat: inFormat, SampleRate: inRate}
	out := AudioSpec{Channels: outChannels, SampleFormat: outFormat, SampleRate: outRate}
	ctx, err := eng.NewResampleContext(in, out)
	if err != nil {
		return nil, Errorf("failed to create resampler %d/%s/%d -> %d/%s/%d: %w",
			inChannels, inFormat, inRate, outChannels, outFormat, outRate, err)
	}
	return &Resampler{ctx: ctx, in: in, out: out}, nil
}

// Convert resamples in into out and sets out.NbSamples.
func (r *Resampler) Convert(in, out *Frame) error {
	if in.Channels != r.in.Channels || in.SampleFormat != r.in.SampleFormat || in.SampleRate != r.in.SampleRate {
		return Errorf("resampler input mismatch: got %d/%s/%d, bound to %d/%s/%d",
			in.Channels, in.SampleFormat, in.SampleRate, r.in.Channels, r.in.SampleFormat, r.in.SampleRate)
	}
	if out.Channels != r.out.Channels || out.SampleFormat != r.out.SampleFormat || out.SampleRate != r.out.SampleRate || !out.HasData() {
		return Errorf("resampler output mismatch: got %d/%s/%d, bound to %d/%s/%d",
			out.Channels, out.SampleFormat, out.SampleRate, r.out.Channels, r.out.SampleFormat, r.out.SampleRate)
	}
	if err := r.ctx.Convert(in, out); err != nil {
		return Errorf("failed to resample audio frame: %w", err)
	}
	return nil
}

// Input returns the bound input format.
func (r *Resampler) Input() AudioSpec { return r.in }

// Output returns the bound output format.
func (r *Resampler) Output() AudioSpec { return r.out }

// Close releases the resampler.
func (r *Resampler) Close() error { return r.ctx.Close() }

// Scaler converts pictures between two geometries fixed at construction.
// It never allocates: out must be an allocated frame of the output geometry.
type Scaler struct {
	ctx     ScaleContext
	in, out VideoSpec
}

// NewScaler binds a scaler to the given input and output geometry.
func NewScaler(eng ConvertEngine, inWidth, inHeight int, inFormat PixelFormat,
	outWidth, outHeight int, outFormat PixelFormat) (*Scaler, error) {
	in := VideoSpec{Width: inWidth, Height: inHeight, PixelFormat: inFormat}
	out := VideoSpec{Width: outWidth, Height: outHeight, PixelFormat: outFormat}
	ctx, err := eng.NewScaleContext(in, out)
	if err != nil {
		return nil, Errorf("failed to create scaler %dx%d %s -> %dx%d %s: %w",
			inWidth, inHeight, inFormat, outWidth, outHeight, outFormat, err)
	}
	return &Scaler{ctx: ctx, in: in, out: out}, nil
}

// Scale converts in into out.
func (s *Scaler) Scale(in, out *Frame) error {
	if in.Width != s.in.Width || in.Height != s.in.Height || in.PixelFormat != s.in.PixelFormat {
		return Errorf("scaler input mismatch: got %dx%d %s, bound to %dx%d %s",
			in.Width, in.Height, in.PixelFormat, s.in.Width, s.in.Height, s.in.PixelFormat)
	}
	if out.Width != s.out.Width || out.Height != s.out.Height || out.PixelFormat != s.out.PixelFormat || !out.HasData() {
		return Errorf("scaler output mismatch: got %dx%d %s, bound to %dx%d %s",
			out.Width, out.Height, out.PixelFormat, s.out.Width, s.out.Height, s.out.PixelFormat)
	}
	if err := s.ctx.Scale(in, out); err != nil {
		return Errorf("failed to scale video frame: %w", err)
	}
	return nil
}

// Input returns the bound input geometry.
func (s *Scaler) Input() VideoSpec { return s.in }

// Output returns the bound output geometry.
func (s *Scaler) Output() VideoSpec { return s.out }

// Close releases the scaler.
func (s *Scaler) Close() error { return s.ctx.Close() }
