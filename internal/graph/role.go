package graph

import "fmt"

// Category is a feed category: audio only, video only or both.
type Category string

const (
	CategoryAudio      Category = "audio"
	CategoryVideo      Category = "video"
	CategoryAudioVideo Category = "audiovideo"
)

// Categories lists every feed category in a stable order.
var Categories = []Category{CategoryAudio, CategoryVideo, CategoryAudioVideo}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryAudio, CategoryVideo, CategoryAudioVideo:
		return c, nil
	}
	return "", NewError(CodeInvalidCategory, "", fmt.Sprintf("unknown feed category %q", s), nil)
}

// Role is the user-facing role of a stage. The set is closed: AudioSource,
// VideoSource, StreamSink and StoreSink. Processing stages have no role.
type Role interface {
	isRole()
}

// AudioSource is an audio capture stage. Default marks the silent
// placeholder source used for preview.
type AudioSource struct {
	Device  string
	Default bool
}

// VideoTransport tells how a video source is reached.
type VideoTransport string

const (
	VideoUSB  VideoTransport = "usb"
	VideoIP   VideoTransport = "ip"
	VideoTest VideoTransport = "test"
)

// VideoSource is a video capture stage.
type VideoSource struct {
	Transport VideoTransport
	Location  string
	Default   bool
}

// StreamSink is a network (Icecast) sink.
type StreamSink struct {
	Category Category
	IP       string
	Port     int
	Mount    string
	Password string
}

// StoreSink is a file sink.
type StoreSink struct {
	Category Category
	Path     string
}

func (AudioSource) isRole() {}
func (VideoSource) isRole() {}
func (StreamSink) isRole()  {}
func (StoreSink) isRole()   {}

// SourceCategory returns the category a source role feeds, or an
// ErrNotAudioVideoSource error for any other role.
func SourceCategory(r Role) (Category, error) {
	switch r.(type) {
	case AudioSource:
		return CategoryAudio, nil
	case VideoSource:
		return CategoryVideo, nil
	}
	return "", NewError(CodeNotAudioVideoSource, "", fmt.Sprintf("role %T is not an input source", r), nil)
}

// SinkCategory returns the category of a sink role, or an
// ErrNotStoreStreamSink error for any other role.
func SinkCategory(r Role) (Category, error) {
	switch s := r.(type) {
	case StreamSink:
		return s.Category, nil
	case StoreSink:
		return s.Category, nil
	}
	return "", NewError(CodeNotStoreStreamSink, "", fmt.Sprintf("role %T is not an output sink", r), nil)
}
