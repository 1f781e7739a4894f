package pureav

import (
	"bytes"
	"io"
	"sync"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// webmWriter muxes WebM/Matroska through ebml-go's block writer. Block
// timestamps are milliseconds.
type webmWriter struct {
	docType string
	tracks  []webm.BlockWriteCloser

	mu    sync.Mutex
	fatal error
}

func newWebMWriter(format string) *webmWriter {
	docType := "webm"
	if format == formatMKV {
		docType = "matroska"
	}
	return &webmWriter{docType: docType}
}

func (w *webmWriter) flags() av.FormatFlags { return av.FormatGlobalHeader }

func (w *webmWriter) timeBase(av.CodecParameters) av.Rational { return av.R(1, 1000) }

func (w *webmWriter) checkStream(par av.CodecParameters) error {
	if _, ok := matroskaCodecID(par.CodecID); !ok {
		return errors.Wrapf(av.ErrUnsupported, "pureav: codec %s in %s", par.CodecID, w.docType)
	}
	return nil
}

func (w *webmWriter) writeHeader(out io.WriteCloser, streams []muxStream) error {
	entries := make([]webm.TrackEntry, len(streams))
	for i, s := range streams {
		entries[i] = trackEntry(i, s.par)
	}
	header := &webm.EBMLHeader{
		EBMLVersion:        1,
		EBMLReadVersion:    1,
		EBMLMaxIDLength:    4,
		EBMLMaxSizeLength:  8,
		DocType:            w.docType,
		DocTypeVersion:     4,
		DocTypeReadVersion: 2,
	}
	tracks, err := webm.NewSimpleBlockWriter(out, entries,
		mkvcore.WithEBMLHeader(header),
		mkvcore.WithOnFatalHandler(func(err error) {
			w.mu.Lock()
			w.fatal = err
			w.mu.Unlock()
		}),
	)
	if err != nil {
		return errors.Wrap(err, "pureav: write matroska header")
	}
	w.tracks = tracks
	return nil
}

func trackEntry(i int, par av.CodecParameters) webm.TrackEntry {
	codecID, _ := matroskaCodecID(par.CodecID)
	t := webm.TrackEntry{
		Name:         par.MediaType.String(),
		TrackNumber:  uint64(i + 1),
		TrackUID:     uint64(i + 1),
		CodecID:      codecID,
		CodecPrivate: par.Extradata,
	}
	switch par.MediaType {
	case av.MediaTypeVideo:
		t.TrackType = trackTypeVideo
		t.Video = &webm.Video{PixelWidth: uint64(par.Width), PixelHeight: uint64(par.Height)}
		if par.CodecID == av.CodecRawVideo {
			t.CodecPrivate = []byte(par.PixelFormat.String())
		}
		if !par.FrameRate.IsZero() {
			t.DefaultDuration = uint64(av.Rescale(1, par.FrameRate.Inv(), av.R(1, 1000000000)))
		}
	case av.MediaTypeAudio:
		t.TrackType = trackTypeAudio
		t.Audio = &webm.Audio{SamplingFrequency: float64(par.SampleRate), Channels: uint64(par.Channels)}
	}
	return t
}

func (w *webmWriter) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fatal
}

func (w *webmWriter) writePacket(pkt *av.Packet) error {
	if err := w.err(); err != nil {
		return errors.Wrap(err, "pureav: matroska writer failed")
	}
	ts := pkt.PTS
	if ts == av.NoPTS {
		ts = pkt.DTS
	}
	// The block writer serializes on its own goroutine after Write returns,
	// so it must not see the pooled packet buffer.
	if _, err := w.tracks[pkt.StreamIndex].Write(pkt.IsKeyframe(), ts, bytes.Clone(pkt.Data())); err != nil {
		return errors.Wrapf(err, "pureav: write block to track %d", pkt.StreamIndex+1)
	}
	return nil
}

// close closes every track writer; the last one closes the file.
func (w *webmWriter) close() error {
	var first error
	for _, t := range w.tracks {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	w.tracks = nil
	if first == nil {
		first = w.err()
	}
	return first
}
