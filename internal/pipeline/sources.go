package pipeline

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/smazurov/castnode/internal/engine"
	"github.com/smazurov/castnode/internal/graph"
)

// RTSPPort is the only port accepted for IP cameras.
const RTSPPort = "554"

const noVideoText = "No video source"

// newSourceStage creates the stage for an input role without adding it to
// the container.
func newSourceStage(g *graph.Graph, role graph.Role) (*graph.Stage, error) {
	switch r := role.(type) {
	case graph.AudioSource:
		if r.Default {
			return g.NewStage("audiotestsrc", g.UniqueName("default_audio_source"),
				graph.WithRole(r), graph.WithProperty("volume", 0.0))
		}
		if r.Device == "" {
			return nil, graph.NewError(graph.CodeDeviceMissing, "", "audio device is required", nil)
		}
		return g.NewStage("pulsesrc", g.UniqueName("microphone_"+r.Device),
			graph.WithRole(r), graph.WithProperty("device", r.Device))

	case graph.VideoSource:
		switch {
		case r.Default || r.Transport == graph.VideoTest:
			r.Default = true
			r.Transport = graph.VideoTest
			return g.NewStage("videotestsrc", g.UniqueName("default_video_source"),
				graph.WithRole(r), graph.WithProperty("pattern", 2))
		case r.Transport == graph.VideoUSB:
			if r.Location == "" {
				return nil, graph.NewError(graph.CodeDeviceMissing, "", "video device is required", nil)
			}
			return g.NewStage("v4l2src", g.UniqueName("usb_camera_"+filepath.Base(r.Location)),
				graph.WithRole(r), graph.WithProperty("device", r.Location))
		case r.Transport == graph.VideoIP:
			loc, err := rtspLocation(r.Location)
			if err != nil {
				return nil, err
			}
			r.Location = loc
			return g.NewStage("rtspsrc", g.UniqueName("ip_camera"),
				graph.WithRole(r), graph.WithProperty("location", loc))
		}
		return nil, graph.NewError(graph.CodeNotAudioVideoSource, "", fmt.Sprintf("unknown video transport %q", r.Transport), nil)
	}
	return nil, graph.NewError(graph.CodeNotAudioVideoSource, "", fmt.Sprintf("role %T is not an input source", role), nil)
}

// rtspLocation validates an IP camera address and adds the rtsp scheme.
// The host must be an IP address and the port must be 554.
func rtspLocation(loc string) (string, error) {
	if loc == "" {
		return "", graph.NewError(graph.CodeLocationMissing, "ip_camera", "camera address is required", nil)
	}
	if !strings.Contains(loc, "://") {
		loc = "rtsp://" + loc
	}
	u, err := url.Parse(loc)
	if err != nil || u.Scheme != "rtsp" || net.ParseIP(u.Hostname()) == nil || u.Port() != RTSPPort {
		return "", graph.NewError(graph.CodeLocationNotValid, "ip_camera",
			fmt.Sprintf("%q is not rtsp://<ip>:%s", loc, RTSPPort), err)
	}
	return loc, nil
}

// SetInputSource makes role the active source of its category. A source
// already attached is hot-swapped; otherwise the new source is linked to
// the chain head.
func (p *Pipeline) SetInputSource(ctx context.Context, role graph.Role) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		return p.setInputSource(ctx, role)
	})
}

func (p *Pipeline) setDefaultSource(ctx context.Context, cat graph.Category) error {
	if cat == graph.CategoryAudio {
		return p.setInputSource(ctx, graph.AudioSource{Default: true})
	}
	if err := p.setInputSource(ctx, graph.VideoSource{Default: true, Transport: graph.VideoTest}); err != nil {
		return err
	}
	return p.setTextOverlay(noVideoText, "center", "center")
}

func (p *Pipeline) setInputSource(ctx context.Context, role graph.Role) error {
	cat, err := graph.SourceCategory(role)
	if err != nil {
		return err
	}
	s, err := newSourceStage(p.g, role)
	if err != nil {
		return err
	}

	current := p.sources[cat]
	if current != nil && p.g.InGraph(current) {
		res, err := p.swapper.Swap(ctx, current.Element, s.Element)
		p.lastSwap = &SwapInfo{ID: res.ID, From: current.Name, To: s.Name, State: res.State.String()}
		if err != nil {
			p.lastSwap.Error = err.Error()
			_ = p.g.Destroy(s)
			return err
		}
		p.lastSwap.Seconds = res.Duration.Seconds()
		if err := p.g.Destroy(current); err != nil {
			p.logger.Warn("Releasing replaced source failed", "source", current.Name, "error", err)
		}
	} else {
		head := p.chains.head(cat)
		if err := p.g.AddElements(graph.Branch{s}); err != nil {
			_ = p.g.Destroy(s)
			return err
		}
		if err := p.g.Link(s, head); err != nil {
			_ = p.g.Destroy(s)
			return err
		}
		if state := p.g.Container().State(); state != engine.StateNull {
			if err := s.Element.SetState(state); err != nil {
				return graph.NewError(graph.CodeEngine, s.Name, "syncing state", err)
			}
		}
	}
	p.sources[cat] = s

	// a real camera replaces the "no video" notice
	if v, ok := role.(graph.VideoSource); ok && !v.Default && p.overlay.Text == noVideoText {
		if err := p.setTextOverlay("", "left", "top"); err != nil {
			return err
		}
	}
	p.logger.Info("Input source set", "category", cat, "source", s.Name)
	return nil
}

// RemoveInputSources unlinks and drops every attached input source.
func (p *Pipeline) RemoveInputSources(ctx context.Context) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		for _, cat := range []graph.Category{graph.CategoryAudio, graph.CategoryVideo} {
			s := p.sources[cat]
			if s == nil {
				continue
			}
			if p.g.InGraph(s) {
				if src := s.Element.StaticPad("src"); src != nil && src.Peer() != nil {
					release, err := p.swapper.Block(ctx, src)
					if err != nil {
						return err
					}
					p.g.Unlink(s, p.chains.head(cat))
					release()
				}
			}
			if err := p.g.Destroy(s); err != nil {
				return err
			}
			delete(p.sources, cat)
		}
		p.logger.Debug("Removed all input sources")
		return nil
	})
}
