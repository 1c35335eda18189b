package lyria

// WeightedPrompt steers generation. Weights are relative; a weight of zero
// has no influence.
type WeightedPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// Scale restricts generation to a musical scale.
type Scale string

const (
	ScaleUnspecified Scale = "SCALE_UNSPECIFIED"
	ScaleCMajor      Scale = "C_MAJOR_A_MINOR"
	ScaleDbMajor     Scale = "D_FLAT_MAJOR_B_FLAT_MINOR"
	ScaleDMajor      Scale = "D_MAJOR_B_MINOR"
	ScaleEbMajor     Scale = "E_FLAT_MAJOR_C_MINOR"
	ScaleEMajor      Scale = "E_MAJOR_D_FLAT_MINOR"
	ScaleFMajor      Scale = "F_MAJOR_D_MINOR"
	ScaleGbMajor     Scale = "G_FLAT_MAJOR_E_FLAT_MINOR"
	ScaleGMajor      Scale = "G_MAJOR_E_MINOR"
	ScaleAbMajor     Scale = "A_FLAT_MAJOR_F_MINOR"
	ScaleAMajor      Scale = "A_MAJOR_G_FLAT_MINOR"
	ScaleBbMajor     Scale = "B_FLAT_MAJOR_G_MINOR"
	ScaleBMajor      Scale = "B_MAJOR_A_FLAT_MINOR"
)

// Scales lists every scale the service accepts.
func Scales() []Scale {
	return []Scale{
		ScaleUnspecified, ScaleCMajor, ScaleDbMajor, ScaleDMajor,
		ScaleEbMajor, ScaleEMajor, ScaleFMajor, ScaleGbMajor,
		ScaleGMajor, ScaleAbMajor, ScaleAMajor, ScaleBbMajor, ScaleBMajor,
	}
}

// MusicGenerationConfig tunes the generator. Nil fields are left to the
// service defaults.
type MusicGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopK             *int     `json:"topK,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	Guidance         *float64 `json:"guidance,omitempty"`
	BPM              *int     `json:"bpm,omitempty"`
	Density          *float64 `json:"density,omitempty"`
	Brightness       *float64 `json:"brightness,omitempty"`
	Scale            Scale    `json:"scale,omitempty"`
	MuteBass         bool     `json:"muteBass,omitempty"`
	MuteDrums        bool     `json:"muteDrums,omitempty"`
	OnlyBassAndDrums bool     `json:"onlyBassAndDrums,omitempty"`
}

// PlaybackControl drives the generator's transport.
type PlaybackControl string

const (
	ControlPlay         PlaybackControl = "PLAY"
	ControlPause        PlaybackControl = "PAUSE"
	ControlStop         PlaybackControl = "STOP"
	ControlResetContext PlaybackControl = "RESET_CONTEXT"
)

type setup struct {
	Model string `json:"model"`
}

type clientContent struct {
	WeightedPrompts []WeightedPrompt `json:"weightedPrompts"`
}

type clientMessage struct {
	Setup                 *setup                 `json:"setup,omitempty"`
	ClientContent         *clientContent         `json:"clientContent,omitempty"`
	MusicGenerationConfig *MusicGenerationConfig `json:"musicGenerationConfig,omitempty"`
	PlaybackControl       PlaybackControl        `json:"playbackControl,omitempty"`
}

// AudioChunk is one fragment of generated audio.
type AudioChunk struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// ServerContent carries generated audio.
type ServerContent struct {
	AudioChunks []AudioChunk `json:"audioChunks"`
}

// FilteredPrompt reports a prompt the service refused to use.
type FilteredPrompt struct {
	Text           string `json:"text"`
	FilteredReason string `json:"filteredReason"`
}

// ServerMessage is a single message from the service. Exactly one of the
// fields is normally set.
type ServerMessage struct {
	SetupComplete  *struct{}       `json:"setupComplete,omitempty"`
	ServerContent  *ServerContent  `json:"serverContent,omitempty"`
	FilteredPrompt *FilteredPrompt `json:"filteredPrompt,omitempty"`
	Warning        string          `json:"warning,omitempty"`
}
