//go:build darwin || linux

package libav

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

var (
	mediaAVOnce    sync.Once
	mediaAVHandle  uintptr
	mediaAVInitErr error
)

func loadMediaAV() error {
	mediaAVOnce.Do(func() {
		mediaAVInitErr = loadMediaAVLib()
	})
	return mediaAVInitErr
}

func loadMediaAVLib() error {
	var lastErr error
	for _, path := range mediaAVLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := loadMediaAVSymbols(handle); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		mediaAVHandle = handle
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrNotAvailable, lastErr)
	}
	return fmt.Errorf("%w: %s not found in any standard location", ErrNotAvailable, libName())
}

func libName() string {
	if runtime.GOOS == "darwin" {
		return "libmedia_av.dylib"
	}
	return "libmedia_av.so"
}

func mediaAVLibPaths() []string {
	var paths []string
	name := libName()

	// Environment variable overrides (highest priority)
	if p := os.Getenv("MEDIA_AV_LIB_PATH"); p != "" {
		paths = append(paths, p)
	}
	if p := os.Getenv("MEDIA_SDK_LIB_PATH"); p != "" {
		paths = append(paths, filepath.Join(p, name))
	}

	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(dir, name),
			filepath.Join(dir, "..", "lib", name),
			filepath.Join(dir, "..", "..", "build", name),
			filepath.Join(dir, "..", "..", "build", "ffi", name),
		)
	}

	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			paths = append(paths,
				filepath.Join(dir, "build", name),
				filepath.Join(dir, "build", "ffi", name),
			)
			dir = filepath.Join(dir, "..")
		}
	}

	if root := findSourceRoot(); root != "" {
		paths = append(paths,
			filepath.Join(root, "build", name),
			filepath.Join(root, "build", "ffi", name),
		)
	}
	if root := findModuleRoot(); root != "" {
		paths = append(paths,
			filepath.Join(root, "build", name),
			filepath.Join(root, "build", "ffi", name),
		)
	}

	// System paths (lowest priority)
	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			name,
			"/usr/local/lib/"+name,
			"/opt/homebrew/lib/"+name,
		)
	case "linux":
		paths = append(paths,
			name,
			"/usr/local/lib/"+name,
			"/usr/lib/"+name,
		)
	}
	return paths
}

// findSourceRoot returns the module directory this file was compiled from.
func findSourceRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	root := filepath.Dir(filepath.Dir(file))
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		return ""
	}
	return root
}

// findModuleRoot walks up from the working directory to the directory
// containing go.mod.
func findModuleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func loadMediaAVSymbols(h uintptr) (err error) {
	// RegisterLibFunc panics on a missing symbol; an outdated shim is
	// reported like a missing one.
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(fmt.Sprint(r))
		}
	}()

	purego.RegisterLibFunc(&mediaAVGetError, h, "media_av_get_error")
	purego.RegisterLibFunc(&mediaAVVersion, h, "media_av_version")

	purego.RegisterLibFunc(&mediaAVCodecCount, h, "media_av_codec_count")
	purego.RegisterLibFunc(&mediaAVCodecGet, h, "media_av_codec_get")

	purego.RegisterLibFunc(&mediaAVCodecContextCreate, h, "media_av_codec_context_create")
	purego.RegisterLibFunc(&mediaAVCodecContextSetParams, h, "media_av_codec_context_set_params")
	purego.RegisterLibFunc(&mediaAVCodecContextGetParams, h, "media_av_codec_context_get_params")
	purego.RegisterLibFunc(&mediaAVCodecContextSetOption, h, "media_av_codec_context_set_option")
	purego.RegisterLibFunc(&mediaAVCodecContextOpen, h, "media_av_codec_context_open")
	purego.RegisterLibFunc(&mediaAVCodecSendPacket, h, "media_av_codec_send_packet")
	purego.RegisterLibFunc(&mediaAVCodecReceiveFrame, h, "media_av_codec_receive_frame")
	purego.RegisterLibFunc(&mediaAVCodecSendFrame, h, "media_av_codec_send_frame")
	purego.RegisterLibFunc(&mediaAVCodecReceivePacket, h, "media_av_codec_receive_packet")
	purego.RegisterLibFunc(&mediaAVCodecContextDestroy, h, "media_av_codec_context_destroy")

	purego.RegisterLibFunc(&mediaAVInputOpen, h, "media_av_input_open")
	purego.RegisterLibFunc(&mediaAVInputFindStreamInfo, h, "media_av_input_find_stream_info")
	purego.RegisterLibFunc(&mediaAVInputNbStreams, h, "media_av_input_nb_streams")
	purego.RegisterLibFunc(&mediaAVInputStream, h, "media_av_input_stream")
	purego.RegisterLibFunc(&mediaAVInputFindBestStream, h, "media_av_input_find_best_stream")
	purego.RegisterLibFunc(&mediaAVInputReadPacket, h, "media_av_input_read_packet")
	purego.RegisterLibFunc(&mediaAVInputClose, h, "media_av_input_close")

	purego.RegisterLibFunc(&mediaAVOutputCreate, h, "media_av_output_create")
	purego.RegisterLibFunc(&mediaAVOutputFormatName, h, "media_av_output_format_name")
	purego.RegisterLibFunc(&mediaAVOutputFlags, h, "media_av_output_flags")
	purego.RegisterLibFunc(&mediaAVOutputNewStream, h, "media_av_output_new_stream")
	purego.RegisterLibFunc(&mediaAVOutputOpenIO, h, "media_av_output_open_io")
	purego.RegisterLibFunc(&mediaAVOutputWriteHeader, h, "media_av_output_write_header")
	purego.RegisterLibFunc(&mediaAVOutputStreamTimeBase, h, "media_av_output_stream_time_base")
	purego.RegisterLibFunc(&mediaAVOutputWriteInterlvd, h, "media_av_output_write_interleaved")
	purego.RegisterLibFunc(&mediaAVOutputWriteTrailer, h, "media_av_output_write_trailer")
	purego.RegisterLibFunc(&mediaAVOutputClose, h, "media_av_output_close")

	purego.RegisterLibFunc(&mediaAVBSFParse, h, "media_av_bsf_parse")
	purego.RegisterLibFunc(&mediaAVBSFSetInput, h, "media_av_bsf_set_input")
	purego.RegisterLibFunc(&mediaAVBSFInit, h, "media_av_bsf_init")
	purego.RegisterLibFunc(&mediaAVBSFSendPacket, h, "media_av_bsf_send_packet")
	purego.RegisterLibFunc(&mediaAVBSFReceivePacket, h, "media_av_bsf_receive_packet")
	purego.RegisterLibFunc(&mediaAVBSFOutputParams, h, "media_av_bsf_output_params")
	purego.RegisterLibFunc(&mediaAVBSFDestroy, h, "media_av_bsf_destroy")

	purego.RegisterLibFunc(&mediaAVSwrCreate, h, "media_av_swr_create")
	purego.RegisterLibFunc(&mediaAVSwrConvert, h, "media_av_swr_convert")
	purego.RegisterLibFunc(&mediaAVSwrDestroy, h, "media_av_swr_destroy")

	purego.RegisterLibFunc(&mediaAVSwsCreate, h, "media_av_sws_create")
	purego.RegisterLibFunc(&mediaAVSwsScale, h, "media_av_sws_scale")
	purego.RegisterLibFunc(&mediaAVSwsDestroy, h, "media_av_sws_destroy")
	return nil
}
