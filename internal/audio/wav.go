package audio

import (
	"bytes"
	"encoding/binary"
	"io"
)

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
// The speech endpoint returns PCM from the model; clients get a playable file.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		pcmFormat     = 1
	)
	if sampleRate <= 0 {
		sampleRate = 24000
	}

	dataSize := uint32(len(pcm))
	header := struct {
		RIFF      [4]byte
		RIFFSize  uint32
		WAVE      [4]byte
		Fmt       [4]byte
		FmtSize   uint32
		Format    uint16
		Channels  uint16
		Rate      uint32
		ByteRate  uint32
		Align     uint16
		Bits      uint16
		Data      [4]byte
		DataSize  uint32
	}{
		RIFF:     [4]byte{'R', 'I', 'F', 'F'},
		RIFFSize: 36 + dataSize,
		WAVE:     [4]byte{'W', 'A', 'V', 'E'},
		Fmt:      [4]byte{'f', 'm', 't', ' '},
		FmtSize:  16,
		Format:   pcmFormat,
		Channels: numChannels,
		Rate:     uint32(sampleRate),
		ByteRate: uint32(sampleRate * numChannels * bitsPerSample / 8),
		Align:    numChannels * bitsPerSample / 8,
		Bits:     bitsPerSample,
		Data:     [4]byte{'d', 'a', 't', 'a'},
		DataSize: dataSize,
	}
	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}
