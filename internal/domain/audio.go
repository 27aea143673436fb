package domain

type AudioEncoding string

const (
	EncodingWAV   AudioEncoding = "wav"
	EncodingPCM16 AudioEncoding = "pcm16"
)

type AudioFormat struct {
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Encoding   AudioEncoding `json:"encoding"`
}

func WAVFormat(sampleRate, channels int) AudioFormat {
	return AudioFormat{
		SampleRate: sampleRate,
		Channels:   channels,
		Encoding:   EncodingWAV,
	}
}

// Levels summarises a finished recording.
type Levels struct {
	DurationSeconds float64 `json:"duration_s"`
	RMS             float64 `json:"rms"`
	Peak            float64 `json:"peak"`
}

// Recording is the output of a stopped capture session.
type Recording struct {
	WAV    []byte
	Format AudioFormat
	Levels Levels
}
