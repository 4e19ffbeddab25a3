package pipeline

import (
	"github.com/smazurov/castnode/internal/graph"
)

// VideoCaps is the raw format every video source is converted to.
const VideoCaps = "video/x-raw,format=I420,width=1280,height=720,framerate=24/1"

// chains holds the stages of the static processing graph the pipeline
// needs to reach after construction.
type chains struct {
	audioHead *graph.Stage
	videoHead *graph.Stage

	sourceVolume  *graph.Stage
	speakerVolume *graph.Stage
	speakerSink   *graph.Stage
	imageOverlay  *graph.Stage
	textOverlay   *graph.Stage

	outputs map[graph.Category]*graph.Stage
}

// builder creates stages in order and stops at the first error.
type builder struct {
	g   *graph.Graph
	err error
}

func (b *builder) stage(kind, name string, opts ...graph.StageOption) *graph.Stage {
	if b.err != nil {
		return nil
	}
	s, err := b.g.NewStage(kind, name, opts...)
	b.err = err
	return s
}

func (b *builder) junction(name string, endpoint bool) *graph.Stage {
	if b.err != nil {
		return nil
	}
	s, err := b.g.NewJunction(name, endpoint)
	b.err = err
	return s
}

func (b *builder) relate(s, in, out *graph.Stage) {
	if b.err != nil {
		return
	}
	if in != nil {
		b.err = b.g.SetInputJunction(s, in)
	}
	if b.err == nil && out != nil {
		b.err = b.g.SetOutputJunction(s, out)
	}
}

// buildChains creates and links the audio, video and combined chains:
//
//	volume -> level -> tee_audio_source -+-> queue -> speaker volume -> speaker
//	                                     +-> vorbisenc -> tee_audio_process -+-> queue -> oggmux -> tee_output_audio
//	                                                                         +-> queue_muxer_audio --+
//	videorate -> capsfilter -> image overlay -> text overlay -> tee_video_source                     |
//	    +-> vp8enc -> queue_muxer_video -------------------------------------------------------> webmmux -> tee_output_audiovideo
//	    +-> queue -> matroskamux -> tee_output_video
//	    +-> screen sink
func buildChains(g *graph.Graph, cfg Config) (*chains, error) {
	b := &builder{g: g}

	// audio
	teeAudioSource := b.junction("tee_audio_source", false)
	teeAudioProcess := b.junction("tee_audio_process", false)
	teeOutputAudio := b.junction("tee_output_audio", true)

	queueMuxerAV1 := b.stage("queue", "queue_muxer_av1", graph.DrawsFrom(teeAudioProcess))
	queueSpeaker := b.stage("queue", "queue_speakersink", graph.DrawsFrom(teeAudioSource))
	sourceVolume := b.stage("volume", "source_volume")
	speakerVolume := b.stage("volume", "speaker_volume", graph.WithProperty("mute", true))
	level := b.stage("level", "audiolevel",
		graph.FeedsJunction(teeAudioSource), graph.WithProperty("interval", uint64(200000000)))
	vorbis := b.stage("vorbisenc", "vorbis_encoder", graph.AsJunctionInput(), graph.AsJunctionOutput())
	b.relate(vorbis, teeAudioProcess, teeAudioSource)
	ogg := b.stage("oggmux", "ogg_muxer", graph.FeedsJunction(teeOutputAudio))
	speakerOpts := []graph.StageOption{graph.WithProperty("sync", false)}
	if cfg.SpeakerDevice != "" {
		speakerOpts = append(speakerOpts, graph.WithProperty("device", cfg.SpeakerDevice))
	}
	speakerSink := b.stage(cfg.SpeakerSink, "speaker_sink", speakerOpts...)

	// video
	teeVideoSource := b.junction("tee_video_source", false)
	teeOutputVideo := b.junction("tee_output_video", true)

	queueMuxerAV2 := b.stage("queue", "queue_muxer_av2", graph.DrawsFrom(teeVideoSource))
	capsfilter := b.stage("capsfilter", "capsfilter", graph.WithProperty("caps", VideoCaps))
	imageOpts := []graph.StageOption{graph.WithProperty("offset-x", -6), graph.WithProperty("offset-y", 6)}
	if cfg.OverlayImage != "" {
		imageOpts = append(imageOpts, graph.WithProperty("location", cfg.OverlayImage))
	}
	imageOverlay := b.stage("gdkpixbufoverlay", "image_overlay", imageOpts...)
	textOverlay := b.stage("textoverlay", "text_overlay",
		graph.FeedsJunction(teeVideoSource),
		graph.WithProperty("valignment", valign["top"]),
		graph.WithProperty("halignment", halign["left"]),
		graph.WithProperty("font-desc", "Sans, 24"))
	videorate := b.stage("videorate", "videorate")
	vp8 := b.stage("vp8enc", "vp8_encoder",
		graph.DrawsFrom(teeVideoSource),
		graph.WithProperty("cpu-used", 8),
		graph.WithProperty("deadline", int64(1)),
		graph.WithProperty("threads", 2),
		graph.WithProperty("keyframe-max-dist", 120),
		graph.WithProperty("target-bitrate", 2000000))
	mkv := b.stage("matroskamux", "mkv_muxer", graph.FeedsJunction(teeOutputVideo))
	screen := b.stage(cfg.ScreenSink, "screen_sink", graph.DrawsFrom(teeVideoSource), graph.WithProperty("sync", false))

	// audio + video
	teeOutputAV := b.junction("tee_output_audiovideo", true)
	queueMuxerAudio := b.stage("queue", "queue_muxer_audio", graph.DrawsFrom(teeAudioProcess))
	queueMuxerVideo := b.stage("queue", "queue_muxer_video", graph.WithParents(vp8))
	webm := b.stage("webmmux", "webm_muxer",
		graph.FeedsJunction(teeOutputAV),
		graph.WithParents(queueMuxerAudio, queueMuxerVideo),
		graph.WithProperty("streamable", true))

	if b.err != nil {
		return nil, b.err
	}

	err := g.Build(
		graph.Branch{sourceVolume, level, teeAudioSource},
		graph.Branch{vorbis, teeAudioProcess},
		graph.Branch{queueMuxerAV1, ogg, teeOutputAudio},
		graph.Branch{queueSpeaker, speakerVolume, speakerSink},
		graph.Branch{videorate, capsfilter, imageOverlay, textOverlay, teeVideoSource},
		graph.Branch{vp8},
		graph.Branch{queueMuxerAV2, mkv, teeOutputVideo},
		graph.Branch{screen},
		graph.Branch{queueMuxerAudio},
		graph.Branch{queueMuxerVideo},
		graph.Branch{webm, teeOutputAV},
	)
	if err != nil {
		return nil, err
	}

	return &chains{
		audioHead:     sourceVolume,
		videoHead:     videorate,
		sourceVolume:  sourceVolume,
		speakerVolume: speakerVolume,
		speakerSink:   speakerSink,
		imageOverlay:  imageOverlay,
		textOverlay:   textOverlay,
		outputs: map[graph.Category]*graph.Stage{
			graph.CategoryAudio:      teeOutputAudio,
			graph.CategoryVideo:      teeOutputVideo,
			graph.CategoryAudioVideo: teeOutputAV,
		},
	}, nil
}

// head returns the first stage of the chain a source of cat feeds.
func (c *chains) head(cat graph.Category) *graph.Stage {
	if cat == graph.CategoryAudio {
		return c.audioHead
	}
	return c.videoHead
}
