package models

import (
	"github.com/smazurov/castnode/internal/graph"
	"github.com/smazurov/castnode/internal/pipeline"
	"github.com/smazurov/castnode/internal/watch"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Lifecycle models
type PreviewRequest struct {
	Body struct {
		Category string `json:"category,omitempty" enum:"audio,video" default:"video" doc:"Source category to preview"`
	} `required:"false"`
}

type StateData struct {
	State string `json:"state" example:"playing" enum:"idle,preview,playing,paused,stopped,closed" doc:"Lifecycle state"`
}

type StateResponse struct {
	Body StateData
}

type StatusResponse struct {
	Body pipeline.Status
}

type TopologyData struct {
	Nodes []graph.Node `json:"nodes" doc:"Stages in the container"`
	Edges []graph.Edge `json:"edges" doc:"Links between stages"`
	Text  string       `json:"text" doc:"One line per link"`
}

type TopologyResponse struct {
	Body TopologyData
}

// Source models
type VideoSourceRequest struct {
	Body struct {
		Transport string `json:"transport" enum:"usb,ip,test" example:"usb" doc:"Camera transport"`
		Location  string `json:"location,omitempty" example:"/dev/video0" doc:"Device path for usb, <ip>:554 for ip"`
	}
}

type AudioSourceRequest struct {
	Body struct {
		Device  string `json:"device,omitempty" example:"alsa_input.usb-mic" doc:"Capture device, empty for silence"`
		Default bool   `json:"default,omitempty" doc:"Use the silent test source"`
	}
}

type MuteRequest struct {
	Body struct {
		Muted bool `json:"muted" doc:"Mute state"`
	}
}

// Output models
type StreamOutputRequest struct {
	Body struct {
		Category string `json:"category" enum:"audio,video,audiovideo" doc:"Feed category"`
		Name     string `json:"name" example:"radio" doc:"Display name"`
		IP       string `json:"ip" example:"10.0.0.2" doc:"Icecast server address"`
		Port     int    `json:"port" example:"8000" minimum:"1" maximum:"65535" doc:"Icecast server port"`
		Mount    string `json:"mount" example:"/live.ogg" doc:"Mount point"`
		Password string `json:"password,omitempty" doc:"Source password"`
		Watch    bool   `json:"watch,omitempty" doc:"Watch availability of the server"`
	}
}

type StoreOutputRequest struct {
	Body struct {
		Category string `json:"category" enum:"audio,video,audiovideo" doc:"Feed category"`
		Name     string `json:"name" example:"archive" doc:"Display name"`
		Path     string `json:"path" example:"/var/lib/castnode/show.webm" doc:"Output file"`
	}
}

type OutputResponse struct {
	Body pipeline.OutputInfo
}

type OutputListData struct {
	Outputs []pipeline.OutputInfo `json:"outputs" doc:"All output branches"`
	Count   int                   `json:"count" example:"2" doc:"Number of output branches"`
}

type OutputListResponse struct {
	Body OutputListData
}

type OutputIDInput struct {
	ID string `path:"id" format:"uuid" doc:"Output branch identifier"`
}

// Unit property models
type UnitInput struct {
	Unit string `path:"unit" example:"overlay" doc:"video_source, audio_source, overlay, speaker or output:<id>"`
}

type UnitPropertiesRequest struct {
	Unit string `path:"unit" example:"overlay" doc:"video_source, audio_source, overlay, speaker or output:<id>"`
	Body map[string]any
}

type UnitPropertiesResponse struct {
	Body map[string]any
}

type UnitListResponse struct {
	Body struct {
		Units []string `json:"units" doc:"Configurable units"`
	}
}

// Overlay and speaker models
type TextOverlayRequest struct {
	Body struct {
		Text       string `json:"text" example:"LIVE" doc:"Text drawn over the video"`
		HAlignment string `json:"halignment,omitempty" enum:"left,center,right,position" default:"left" doc:"Horizontal alignment"`
		VAlignment string `json:"valignment,omitempty" enum:"baseline,bottom,top,position,center" default:"top" doc:"Vertical alignment"`
	}
}

type ImageOverlayRequest struct {
	Body struct {
		Location string  `json:"location,omitempty" example:"/usr/share/castnode/logo.png" doc:"Image file"`
		OffsetX  int     `json:"offset_x,omitempty" doc:"Horizontal offset in pixels, 0 keeps the current value"`
		OffsetY  int     `json:"offset_y,omitempty" doc:"Vertical offset in pixels, 0 keeps the current value"`
		Alpha    float64 `json:"alpha,omitempty" minimum:"0" maximum:"1" doc:"Opacity, 0 keeps the current value"`
	}
}

type OverlayResponse struct {
	Body pipeline.Overlay
}

type SpeakerRequest struct {
	Body struct {
		Device string `json:"device,omitempty" doc:"Playback device, empty keeps the current one"`
		Muted  *bool  `json:"muted,omitempty" doc:"Mute state, omitted keeps the current one"`
	}
}

// Remote watcher models
type RemoteListResponse struct {
	Body struct {
		Running bool          `json:"running" doc:"Watcher is checking remotes"`
		Remotes []watch.State `json:"remotes" doc:"Watched servers"`
	}
}

// Log models
type LogsInput struct {
	Lines  int    `query:"lines" default:"100" minimum:"1" maximum:"1000" doc:"Number of most recent lines"`
	Module string `query:"module" doc:"Only lines of this module"`
}

type LogLine struct {
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type LogsResponse struct {
	Body struct {
		Lines []LogLine `json:"lines"`
	}
}

// Session models
type SessionSaveResponse struct {
	Body struct {
		Path    string `json:"path" doc:"Session file"`
		Outputs int    `json:"outputs" doc:"Saved output branches"`
	}
}
