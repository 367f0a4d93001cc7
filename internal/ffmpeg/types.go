package ffmpeg

import "time"

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	Frames     int
	Bitrate    int64
	VideoCodec string
	PixFmt     string
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultCRF         = 18
	DefaultPreset      = "medium"
	DefaultVideoCodec  = "libx264"
	DefaultPixelFormat = "yuv420p"
	DefaultPattern     = "frame_%05d.png"
)

// EncodeRequest describes one frame sequence to encode.
type EncodeRequest struct {
	// FramesDir holds the frames, named after Pattern.
	FramesDir string
	// Pattern is a printf-style frame name; empty selects DefaultPattern.
	Pattern string
	FPS     int
	Width   int
	Height  int
	// Output is the final mp4 path. It is written via a temp file.
	Output string
	// Progress receives ffmpeg progress blocks. When nil they are logged at
	// debug level.
	Progress func(*Progress)
}
