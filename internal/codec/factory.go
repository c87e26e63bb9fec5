package codec

import (
	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/source"
)

// Factory implements source.DecoderFactory over the ffmpeg-backed
// decoders above, giving internal/source a concrete way to open every
// archive item's decoders without depending on this package directly
// (spec.md §1's Decoder-as-capability boundary).
type Factory struct {
	MaxRes        media.Resolution
	AudioChannels int
	Reporter      source.Reporter
}

var _ source.DecoderFactory = (*Factory)(nil)

// OpenVideo implements source.DecoderFactory.
func (f *Factory) OpenVideo(path string) (source.VideoDecoder, error) {
	return OpenVideoDecoder(path, f.MaxRes, f.Reporter, path)
}

// OpenAudio implements source.DecoderFactory.
func (f *Factory) OpenAudio(path string) (source.AudioDecoder, error) {
	return OpenAudioDecoder(path, f.AudioChannels)
}
