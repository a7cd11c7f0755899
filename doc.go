// Package transcode compresses local video files. It demuxes the source,
// re-encodes the video track to H.264 at a reduced bitrate, passes the
// audio track through untouched, and writes both into a new MP4.
//
// # Architecture
//
//	Probe -> SelectTracks -> Decoder -> FrameSink -> Encoder -> Muxer
//	         audio Extractor (passthrough) -------------------> Muxer
//
// A single cooperative loop, the pipeline coordinator, advances the
// decoder, the encoder, and the audio passthrough in a fixed order every
// iteration. The muxer is gated: the audio track may register early, the
// video track registers only once the encoder announces its output format,
// and no sample is written before the muxer has started.
//
// The target bitrate comes from a pure heuristic over the source geometry,
// bitrate, and frame rate; see BitrateParams. Odd source dimensions are
// floored to even values for 4:2:0 encoding.
//
// # Native Libraries
//
// All container and codec work goes through libav (FFmpeg) via
// github.com/asticode/go-astiav. Building and running needs cgo and the
// FFmpeg development libraries; see the go-astiav documentation for the
// version matrix.
//
// # Errors
//
// Transcoder.Transcode returns exactly one *Error per failed run,
// classified at the point of detection as invalid input, compression
// failure, postcondition failure, or unexpected. Partial output files are
// deleted before the error surfaces.
package transcode
