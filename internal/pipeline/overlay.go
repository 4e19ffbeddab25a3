package pipeline

import (
	"context"
	"fmt"

	"github.com/smazurov/castnode/internal/graph"
)

// textoverlay alignment enum values
var (
	halign = map[string]int{"left": 0, "center": 1, "right": 2, "position": 4}
	valign = map[string]int{"baseline": 0, "bottom": 1, "top": 2, "position": 3, "center": 4}
)

// Overlay is the text and image drawn over the video feed.
type Overlay struct {
	Text       string  `json:"text"`
	HAlignment string  `json:"halignment" enum:"left,center,right,position"`
	VAlignment string  `json:"valignment" enum:"baseline,bottom,top,position,center"`
	Image      string  `json:"image,omitempty"`
	OffsetX    int     `json:"offset_x"`
	OffsetY    int     `json:"offset_y"`
	Alpha      float64 `json:"alpha,omitempty"`
}

// ImageOverlay updates the image overlay. Zero fields leave the current
// value alone.
type ImageOverlay struct {
	Location string
	OffsetX  int
	OffsetY  int
	Alpha    float64
}

// Speaker is the local monitor output.
type Speaker struct {
	Device string `json:"device,omitempty"`
	Muted  bool   `json:"muted"`
}

// SetTextOverlay sets the text drawn over the video and its alignment.
func (p *Pipeline) SetTextOverlay(ctx context.Context, text, h, v string) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		return p.setTextOverlay(text, h, v)
	})
}

func (p *Pipeline) setTextOverlay(text, h, v string) error {
	hv, ok := halign[h]
	if !ok {
		return graph.NewError(graph.CodeInvalidArgument, "text_overlay", fmt.Sprintf("unknown horizontal alignment %q", h), nil)
	}
	vv, ok := valign[v]
	if !ok {
		return graph.NewError(graph.CodeInvalidArgument, "text_overlay", fmt.Sprintf("unknown vertical alignment %q", v), nil)
	}
	el := p.chains.textOverlay
	for _, kv := range []struct {
		name  string
		value any
	}{{"text", text}, {"halignment", hv}, {"valignment", vv}} {
		if err := el.Element.SetProperty(kv.name, kv.value); err != nil {
			return graph.NewError(graph.CodeEngine, el.Name, "setting "+kv.name, err)
		}
	}
	p.overlay.Text, p.overlay.HAlignment, p.overlay.VAlignment = text, h, v
	return nil
}

// CurrentText returns the text drawn over the video.
func (p *Pipeline) CurrentText(ctx context.Context) (string, error) {
	var text string
	err := p.read(ctx, func() error {
		text = p.overlay.Text
		return nil
	})
	return text, err
}

// SetImageOverlay updates the image drawn over the video.
func (p *Pipeline) SetImageOverlay(ctx context.Context, img ImageOverlay) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		return p.setImageOverlay(img)
	})
}

func (p *Pipeline) setImageOverlay(img ImageOverlay) error {
	el := p.chains.imageOverlay
	set := func(name string, value any) error {
		if err := el.Element.SetProperty(name, value); err != nil {
			return graph.NewError(graph.CodeEngine, el.Name, "setting "+name, err)
		}
		return nil
	}
	if img.Location != "" {
		if err := set("location", img.Location); err != nil {
			return err
		}
		p.overlay.Image = img.Location
	}
	if img.OffsetX != 0 {
		if err := set("offset-x", img.OffsetX); err != nil {
			return err
		}
		p.overlay.OffsetX = img.OffsetX
	}
	if img.OffsetY != 0 {
		if err := set("offset-y", img.OffsetY); err != nil {
			return err
		}
		p.overlay.OffsetY = img.OffsetY
	}
	if img.Alpha != 0 {
		if err := set("alpha", img.Alpha); err != nil {
			return err
		}
		p.overlay.Alpha = img.Alpha
	}
	return nil
}

// Overlay returns the current overlay settings.
func (p *Pipeline) Overlay(ctx context.Context) (Overlay, error) {
	var o Overlay
	err := p.read(ctx, func() error {
		o = p.overlay
		return nil
	})
	return o, err
}

// MuteInput mutes or unmutes the audio input.
func (p *Pipeline) MuteInput(ctx context.Context, mute bool) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		return p.muteInput(mute)
	})
}

func (p *Pipeline) muteInput(mute bool) error {
	el := p.chains.sourceVolume
	if err := el.Element.SetProperty("mute", mute); err != nil {
		return graph.NewError(graph.CodeEngine, el.Name, "setting mute", err)
	}
	p.inputMuted = mute
	p.logger.Info("Audio input mute changed", "muted", mute)
	return nil
}

// MuteSpeaker mutes or unmutes the local monitor. It starts muted.
func (p *Pipeline) MuteSpeaker(ctx context.Context, mute bool) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		return p.muteSpeaker(mute)
	})
}

func (p *Pipeline) muteSpeaker(mute bool) error {
	el := p.chains.speakerVolume
	if err := el.Element.SetProperty("mute", mute); err != nil {
		return graph.NewError(graph.CodeEngine, el.Name, "setting mute", err)
	}
	p.speaker.Muted = mute
	return nil
}

// SetSpeakerDevice selects the device of the local monitor.
func (p *Pipeline) SetSpeakerDevice(ctx context.Context, device string) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		return p.setSpeakerDevice(device)
	})
}

func (p *Pipeline) setSpeakerDevice(device string) error {
	if device == "" {
		return graph.NewError(graph.CodeDeviceMissing, "speaker_sink", "speaker device is required", nil)
	}
	el := p.chains.speakerSink
	if err := el.Element.SetProperty("device", device); err != nil {
		return graph.NewError(graph.CodeEngine, el.Name, "setting device", err)
	}
	p.speaker.Device = device
	p.logger.Info("Speaker device set", "device", device)
	return nil
}
