package audio

import (
	"encoding/binary"
	"errors"
)

const bitsPerSample = 16

// EncodeWAV wraps the clip's PCM data in a standard RIFF/WAV container
// suitable for upload to batch transcription endpoints.
func EncodeWAV(clip Clip) []byte {
	channels := clip.Channels
	if channels <= 0 {
		channels = 1
	}
	byteRate := clip.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(clip.Data)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(clip.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], clip.Data)

	return buf
}

// DecodeWAV extracts the PCM payload and format from a RIFF/WAV file. Only
// 16-bit PCM is supported. Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(wav []byte) (Clip, error) {
	if len(wav) < 12 {
		return Clip{}, errors.New("audio: WAV data too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return Clip{}, errors.New("audio: WAV data missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return Clip{}, errors.New("audio: WAV data missing WAVE identifier")
	}

	clip := Clip{SampleRate: 22050, Channels: 1}
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				f := wav[offset+8:]
				if bits := binary.LittleEndian.Uint16(f[14:16]); bits != bitsPerSample {
					return Clip{}, errors.New("audio: only 16-bit PCM WAV is supported")
				}
				clip.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
				clip.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			}
		case "data":
			start := offset + 8
			end := min(start+chunkSize, len(wav))
			clip.Data = wav[start:end]
			return clip, nil
		}

		// Chunks are word-aligned.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Clip{}, errors.New("audio: WAV data missing data chunk")
}
