// Package av drives a codec/container engine to demultiplex, decode,
// convert, re-encode and multiplex media while preserving timing.
//
// Key pieces include:
//   - Decoder, Encoder and BitstreamFilter: send/receive drivers with an
//     explicit protocol state machine
//   - Scaler and Resampler: converters bound to fixed formats
//   - InputDemuxer and StreamReader: container to decoded frames
//   - OutputMuxer and StreamWriter: raw frames to an output container
//   - Error: failures carrying the call sites they passed through
//
// # Architecture
//
//	Read:  InputDemuxer -> Packet -> Decoder -> Frame
//	Write: Frame -> Scaler|Resampler -> Encoder -> Packets -> OutputMuxer
//
// Everything is synchronous and pull based. A component instance must be
// used from one goroutine at a time; separate instances are independent.
//
// # Engines
//
// The core talks to an Engine, a narrow set of codec, container, filter and
// conversion verbs. Engine verbs report ErrAgain when more input is needed
// and io.EOF when a component is drained.
//
//   - libav: the native libav shim (libmedia_av) loaded through purego.
//     Set MEDIA_AV_LIB_PATH or MEDIA_SDK_LIB_PATH to locate it.
//   - pureav: Go containers (WebM, IVF, Ogg, H.264 Annex-B), raw video and
//     PCM codecs, bitstream filters, scaling and resampling.
//   - avtest: a scripted engine for tests.
//
// # Errors
//
// Fallible operations return an error. Errors created by this package are
// *Error values whose stack grows by one location for every call that
// forwards them; print them with %+v to see the stack:
//
//	#0 writer.go:273 [av.(*StreamWriter).Write]
//	#1 encoder.go:231 [av.(*Encoder).EncodeFrame]
//	Error: error sending a frame for encoding: invalid argument
//
// # Logging
//
// Components log through log/slog. InstallLogger sets the process logger
// once; WithLogger overrides it per component.
package av
