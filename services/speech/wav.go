package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const (
	MaxDuration  = 60 * time.Second
	MaxAudioSize = 5 * 1024 * 1024
	// TargetSampleRate is what audio is resampled to when it is not already
	// mono 16-bit PCM.
	TargetSampleRate = 16000
)

var (
	ErrInvalidAudio = errors.New("audio must be a WAV file")
	ErrAudioTooLong = errors.New("audio is longer than one minute")
	ErrNoSpeech     = errors.New("no speech recognized")
)

type waveHeader struct {
	RiffTag       [4]byte
	FileSize      uint32
	WaveTag       [4]byte
	FmtTag        [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataTag       [4]byte
	DataSize      uint32
}

func parseWaveHeader(data []byte) (*waveHeader, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("%w: header too short", ErrInvalidAudio)
	}
	var h waveHeader
	if err := binary.Read(bytes.NewReader(data[:44]), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if string(h.RiffTag[:]) != "RIFF" || string(h.WaveTag[:]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE tags", ErrInvalidAudio)
	}
	return &h, nil
}

// linear16 reports whether the recognizer can take the payload as is.
func (h *waveHeader) linear16() bool {
	return h.AudioFormat == 1 && h.NumChannels == 1 && h.BitsPerSample == 16 &&
		string(h.DataTag[:]) == "data"
}

func (h *waveHeader) duration() time.Duration {
	if h.ByteRate == 0 {
		return 0
	}
	return time.Duration(float64(h.DataSize) / float64(h.ByteRate) * float64(time.Second))
}

// Clip is audio ready for recognition.
type Clip struct {
	Data       []byte
	SampleRate int32
}

// Prepare validates a WAV upload and converts it to mono 16-bit PCM when it
// is not already in that shape.
func Prepare(ctx context.Context, data []byte) (Clip, error) {
	if len(data) > MaxAudioSize {
		return Clip{}, ErrAudioTooLong
	}
	h, err := parseWaveHeader(data)
	if err != nil {
		return Clip{}, err
	}
	if h.duration() > MaxDuration {
		return Clip{}, ErrAudioTooLong
	}
	if h.linear16() {
		return Clip{Data: data, SampleRate: int32(h.SampleRate)}, nil
	}
	converted, err := convertAudio(ctx, data)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Data: converted, SampleRate: TargetSampleRate}, nil
}

func convertAudio(ctx context.Context, data []byte) ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in system PATH: %w", err)
	}
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", "pipe:0",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", fmt.Sprint(TargetSampleRate),
		"-f", "wav",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg conversion failed: %s", stderr.String())
	}
	return stdout.Bytes(), nil
}
