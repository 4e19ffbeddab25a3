package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/smazurov/castnode/internal/engine"
	"github.com/smazurov/castnode/internal/engine/sim"
	"github.com/smazurov/castnode/internal/events"
	"github.com/smazurov/castnode/internal/graph"
	"github.com/smazurov/castnode/internal/outputs"
	"github.com/smazurov/castnode/internal/pipeline"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newPipeline(t *testing.T, bus *events.Bus, opts ...sim.Option) *pipeline.Pipeline {
	t.Helper()
	eng := sim.New(append([]sim.Option{sim.WithTick(time.Millisecond)}, opts...)...)
	p, err := pipeline.New(eng, pipeline.Config{
		Name:              "test",
		SwapTimeout:       2 * time.Second,
		ReconnectInterval: 200 * time.Millisecond,
	}, pipeline.WithLogger(quiet), pipeline.WithBus(bus))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func element(t *testing.T, p *pipeline.Pipeline, name string) engine.Element {
	t.Helper()
	el := p.Graph().Container().ByName(name)
	if el == nil {
		t.Fatalf("%s not in container", name)
	}
	return el
}

func waitState(el engine.Element, want engine.State, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if el.State() == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return el.State() == want
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil)

	if p.State() != pipeline.StateIdle {
		t.Fatalf("initial state %s", p.State())
	}
	if err := p.Stop(ctx); !errors.Is(err, graph.ErrInvalidState) {
		t.Errorf("stop from idle: %v", err)
	}
	if err := p.EnterPreview(ctx, graph.CategoryVideo); err != nil {
		t.Fatal(err)
	}
	if p.State() != pipeline.StatePreview {
		t.Fatalf("state %s, want preview", p.State())
	}
	if err := p.Pause(ctx); !errors.Is(err, graph.ErrInvalidState) {
		t.Errorf("pause from preview: %v", err)
	}

	steps := []struct {
		name string
		op   func(context.Context) error
		want pipeline.State
	}{
		{"play", p.Play, pipeline.StatePlaying},
		{"pause", p.Pause, pipeline.StatePaused},
		{"resume", p.Play, pipeline.StatePlaying},
		{"stop", p.Stop, pipeline.StatePreview},
	}
	for _, s := range steps {
		if err := s.op(ctx); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if p.State() != s.want {
			t.Fatalf("after %s: state %s, want %s", s.name, p.State(), s.want)
		}
	}

	if err := p.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if p.State() != pipeline.StateClosed {
		t.Errorf("state %s, want closed", p.State())
	}
	if err := p.Play(ctx); !errors.Is(err, graph.ErrPipelineClosed) {
		t.Errorf("play after close: %v", err)
	}
	if err := p.Close(ctx); err != nil {
		t.Errorf("second close: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Error("control goroutine still running")
	}
}

func TestPreviewDefaultVideoSource(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil)

	if err := p.EnterPreview(ctx, graph.CategoryVideo); err != nil {
		t.Fatal(err)
	}
	text, err := p.CurrentText(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if text != "No video source" {
		t.Errorf("overlay text %q", text)
	}
	src := element(t, p, "default_video_source")
	if !sim.WaitBuffers(element(t, p, "screen_sink"), 0, time.Second) {
		t.Error("preview does not reach the screen sink")
	}
	if src.State() != engine.StatePlaying {
		t.Errorf("source state %s", src.State())
	}

	if err := p.EnterPreview(ctx, graph.CategoryAudioVideo); !errors.Is(err, graph.ErrInvalidCategory) {
		t.Errorf("audiovideo preview: %v", err)
	}
}

func TestPlayAttachesPendingOutputs(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil)
	if err := p.EnterPreview(ctx, graph.CategoryVideo); err != nil {
		t.Fatal(err)
	}

	out, err := p.CreateStoreBranch(ctx, graph.CategoryVideo, "recording", t.TempDir()+"/out.mkv")
	if err != nil {
		t.Fatal(err)
	}
	if out.State != pipeline.OutputPending {
		t.Errorf("branch state %s before play", out.State)
	}
	if err := p.Play(ctx); err != nil {
		t.Fatal(err)
	}
	st, err := p.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Outputs) != 1 || st.Outputs[0].State != pipeline.OutputAttached {
		t.Fatalf("outputs %+v", st.Outputs)
	}
	for _, j := range st.Junctions {
		wantPlaceholder := j.Category != string(graph.CategoryVideo)
		if j.Placeholder != wantPlaceholder {
			t.Errorf("junction %s placeholder=%v", j.Name, j.Placeholder)
		}
	}
	if !sim.WaitBuffers(element(t, p, out.Sink), 0, time.Second) {
		t.Error("no buffers reach the store sink")
	}

	// attached right away while playing
	live, err := p.CreateStoreBranch(ctx, graph.CategoryVideo, "second", t.TempDir()+"/b.mkv")
	if err != nil {
		t.Fatal(err)
	}
	if live.State != pipeline.OutputAttached {
		t.Errorf("live branch state %s", live.State)
	}

	if err := p.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	outs, _ := p.Outputs(ctx)
	for _, o := range outs {
		if o.State != pipeline.OutputPending {
			t.Errorf("branch %s %s after stop", o.Name, o.State)
		}
	}
}

func TestSetInputSourceWhilePlaying(t *testing.T) {
	ctx := context.Background()
	bus := events.New()
	swapped := make(chan events.SourceSwappedEvent, 1)
	defer bus.Subscribe(func(e events.SourceSwappedEvent) { swapped <- e })()

	p := newPipeline(t, bus)
	if err := p.EnterPreview(ctx, graph.CategoryVideo); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(ctx); err != nil {
		t.Fatal(err)
	}

	cam := graph.VideoSource{Transport: graph.VideoUSB, Location: "/dev/video0"}
	if err := p.SetInputSource(ctx, cam); err != nil {
		t.Fatal(err)
	}

	st, err := p.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != string(pipeline.StatePlaying) {
		t.Errorf("state %s after swap", st.State)
	}
	if st.LastSwap == nil || st.LastSwap.State != "released" || st.LastSwap.To != "usb_camera_video0" {
		t.Fatalf("last swap %+v", st.LastSwap)
	}
	if len(st.Sources) != 1 || st.Sources[0].Stage != "usb_camera_video0" {
		t.Errorf("sources %+v", st.Sources)
	}
	if p.Graph().Container().ByName("default_video_source") != nil {
		t.Error("replaced source still in container")
	}

	camEl := element(t, p, "usb_camera_video0")
	if got := engine.DownstreamElement(camEl); got == nil || got.Name() != "videorate" {
		t.Errorf("camera feeds %v", got)
	}
	before := sim.BufferCount(element(t, p, "screen_sink"))
	if !sim.WaitBuffers(element(t, p, "screen_sink"), before, time.Second) {
		t.Error("no buffers after swap")
	}
	if text, _ := p.CurrentText(ctx); text != "" {
		t.Errorf("overlay text %q after real camera", text)
	}

	select {
	case e := <-swapped:
		if e.From != "default_video_source" {
			t.Errorf("swap event %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("no swap event")
	}
}

func TestQueriesAnsweredDuringStalledSwap(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, sim.StallEOS("videotestsrc"))
	if err := p.EnterPreview(ctx, graph.CategoryVideo); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(ctx); err != nil {
		t.Fatal(err)
	}

	swapErr := make(chan error, 1)
	go func() {
		swapErr <- p.SetInputSource(ctx, graph.VideoSource{Transport: graph.VideoUSB, Location: "/dev/video0"})
	}()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	st, err := p.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Errorf("Status took %s while a swap was pending", d)
	}
	if st.State != string(pipeline.StatePlaying) || len(st.Sources) != 1 || st.Sources[0].Stage != "default_video_source" {
		t.Errorf("status during swap %+v", st)
	}
	if _, err := p.Units(ctx); err != nil {
		t.Error(err)
	}

	muted := make(chan error, 1)
	go func() { muted <- p.MuteInput(ctx, true) }()
	select {
	case <-muted:
		select {
		case <-swapErr:
		default:
			t.Error("mutation ran before the pending swap ended")
		}
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case err := <-swapErr:
		if !errors.Is(err, graph.ErrSwapTimeout) {
			t.Errorf("swap err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("swap never ended")
	}
	if err := <-muted; err != nil {
		t.Errorf("queued mute: %v", err)
	}
	st, _ = p.Status(ctx)
	if st.LastSwap == nil || st.LastSwap.State != "failed" {
		t.Errorf("last swap %+v", st.LastSwap)
	}
	if len(st.Sources) != 1 || st.Sources[0].Stage != "default_video_source" {
		t.Errorf("source after failed swap %+v", st.Sources)
	}
	if p.Graph().Container().ByName("usb_camera_video0") != nil {
		t.Error("rejected source left in the container")
	}
}

func TestSetInputSourceValidation(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil)

	tests := []struct {
		name string
		role graph.Role
		want error
	}{
		{"usb without device", graph.VideoSource{Transport: graph.VideoUSB}, graph.ErrDeviceMissing},
		{"ip without address", graph.VideoSource{Transport: graph.VideoIP}, graph.ErrLocationMissing},
		{"ip wrong port", graph.VideoSource{Transport: graph.VideoIP, Location: "10.0.0.5:8554"}, graph.ErrLocationNotValid},
		{"ip hostname", graph.VideoSource{Transport: graph.VideoIP, Location: "camera.local:554"}, graph.ErrLocationNotValid},
		{"microphone without device", graph.AudioSource{}, graph.ErrDeviceMissing},
		{"sink role", graph.StoreSink{Category: graph.CategoryAudio, Path: "/tmp/a.ogg"}, graph.ErrNotAudioVideoSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.SetInputSource(ctx, tt.role); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if err := p.SetInputSource(ctx, graph.VideoSource{Transport: graph.VideoIP, Location: "10.0.0.5:554"}); err != nil {
		t.Fatal(err)
	}
	props, err := p.Properties(ctx, pipeline.UnitVideoSource)
	if err != nil {
		t.Fatal(err)
	}
	if props["location"] != "rtsp://10.0.0.5:554" {
		t.Errorf("location %v", props["location"])
	}
}

func TestStreamReconnect(t *testing.T) {
	ctx := context.Background()
	bus := events.New()
	phases := make(chan events.BranchReconnectEvent, 8)
	defer bus.Subscribe(func(e events.BranchReconnectEvent) { phases <- e })()
	sinkErrs := make(chan events.SinkErrorEvent, 1)
	defer bus.Subscribe(func(e events.SinkErrorEvent) { sinkErrs <- e })()

	p := newPipeline(t, bus)
	if err := p.EnterPreview(ctx, graph.CategoryAudio); err != nil {
		t.Fatal(err)
	}
	stream, err := p.CreateStreamBranch(ctx, graph.CategoryAudio, "radio",
		outputs.StreamParams{IP: "127.0.0.1", Port: 8000, Mount: "/live.ogg", Password: "hackme"})
	if err != nil {
		t.Fatal(err)
	}
	store, err := p.CreateStoreBranch(ctx, graph.CategoryAudio, "archive", t.TempDir()+"/a.ogg")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Play(ctx); err != nil {
		t.Fatal(err)
	}

	streamSink := element(t, p, stream.Sink)
	storeSink := element(t, p, store.Sink)
	sim.Post(p.Graph().Container(), engine.Message{
		Type:   engine.MessageError,
		Source: stream.Sink,
		Text:   "Could not connect to server",
	})

	next := func(want string) events.BranchReconnectEvent {
		t.Helper()
		select {
		case e := <-phases:
			if e.Phase != want || e.BranchID != stream.ID {
				t.Fatalf("reconnect event %+v, want phase %s", e, want)
			}
			return e
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s event", want)
		}
		return events.BranchReconnectEvent{}
	}

	waiting := next(events.ReconnectWaiting)
	if waiting.Attempt != 1 {
		t.Errorf("attempt %d", waiting.Attempt)
	}
	select {
	case e := <-sinkErrs:
		if e.BranchID != stream.ID {
			t.Errorf("sink error %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("no sink error event")
	}
	if !waitState(streamSink, engine.StateNull, time.Second) {
		t.Errorf("stream sink %s while reconnecting", streamSink.State())
	}
	st, _ := p.Status(ctx)
	if st.State != string(pipeline.StatePlaying) || st.Reconnects != 1 {
		t.Errorf("status %s reconnects=%d", st.State, st.Reconnects)
	}
	before := sim.BufferCount(storeSink)
	if !sim.WaitBuffers(storeSink, before, time.Second) {
		t.Error("store branch stalled by stream error")
	}

	next(events.ReconnectResumed)
	if !waitState(streamSink, engine.StatePlaying, time.Second) {
		t.Errorf("stream sink %s after resume", streamSink.State())
	}
	before = sim.BufferCount(streamSink)
	if !sim.WaitBuffers(streamSink, before, time.Second) {
		t.Error("no buffers after resume")
	}
}

func TestStoreErrorDoesNotReconnect(t *testing.T) {
	ctx := context.Background()
	bus := events.New()
	phases := make(chan events.BranchReconnectEvent, 1)
	defer bus.Subscribe(func(e events.BranchReconnectEvent) { phases <- e })()

	p := newPipeline(t, bus)
	if err := p.EnterPreview(ctx, graph.CategoryAudio); err != nil {
		t.Fatal(err)
	}
	store, err := p.CreateStoreBranch(ctx, graph.CategoryAudio, "archive", t.TempDir()+"/a.ogg")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Play(ctx); err != nil {
		t.Fatal(err)
	}
	sim.Post(p.Graph().Container(), engine.Message{Type: engine.MessageError, Source: store.Sink, Text: "disk full"})

	select {
	case e := <-phases:
		t.Errorf("unexpected reconnect %+v", e)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestRemoveOutputWhilePlaying(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil)
	if err := p.EnterPreview(ctx, graph.CategoryVideo); err != nil {
		t.Fatal(err)
	}
	out, err := p.CreateStoreBranch(ctx, graph.CategoryVideo, "rec", t.TempDir()+"/v.mkv")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Play(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.RemoveOutput(ctx, out.ID); err != nil {
		t.Fatal(err)
	}
	if err := p.RemoveOutput(ctx, out.ID); !errors.Is(err, graph.ErrUnknownOutput) {
		t.Errorf("second remove: %v", err)
	}
	st, _ := p.Status(ctx)
	if len(st.Outputs) != 0 {
		t.Errorf("outputs %+v", st.Outputs)
	}
	for _, j := range st.Junctions {
		if !j.Placeholder {
			t.Errorf("junction %s lost its placeholder", j.Name)
		}
	}
	if !sim.WaitBuffers(element(t, p, "screen_sink"), sim.BufferCount(element(t, p, "screen_sink")), time.Second) {
		t.Error("graph stalled after remove")
	}
}

func TestStopWithIdleCategoryBranch(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil)
	// preview synthesizes a video source only, so no data reaches audio
	if err := p.EnterPreview(ctx, graph.CategoryVideo); err != nil {
		t.Fatal(err)
	}
	voice, err := p.CreateStoreBranch(ctx, graph.CategoryAudio, "voice", t.TempDir()+"/a.ogg")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Play(ctx); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("stop took %s", d)
	}
	if p.State() != pipeline.StatePreview {
		t.Fatalf("state %s, want preview", p.State())
	}
	checkPlaceholders := func(when string) {
		t.Helper()
		st, _ := p.Status(ctx)
		for _, j := range st.Junctions {
			if !j.Placeholder {
				t.Errorf("%s: junction %s lost its placeholder", when, j.Name)
			}
		}
	}
	checkPlaceholders("after stop")
	outs, _ := p.Outputs(ctx)
	if len(outs) != 1 || outs[0].State != pipeline.OutputPending {
		t.Errorf("outputs after stop %+v", outs)
	}

	if err := p.Play(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.RemoveOutput(ctx, voice.ID); err != nil {
		t.Fatalf("live remove: %v", err)
	}
	checkPlaceholders("after remove")

	// the new branch takes over the placeholder while playing
	live, err := p.CreateStoreBranch(ctx, graph.CategoryAudio, "voice2", t.TempDir()+"/b.ogg")
	if err != nil {
		t.Fatalf("live create: %v", err)
	}
	if live.State != pipeline.OutputAttached {
		t.Errorf("live branch state %s", live.State)
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	checkPlaceholders("after second stop")
}

func TestPreviewRejectedWhileLive(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil)
	if err := p.EnterPreview(ctx, graph.CategoryVideo); err != nil {
		t.Fatal(err)
	}
	if _, err := p.CreateStoreBranch(ctx, graph.CategoryVideo, "rec", t.TempDir()+"/v.mkv"); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(ctx); err != nil {
		t.Fatal(err)
	}

	for _, step := range []struct {
		name  string
		op    func(context.Context) error
		state pipeline.State
	}{
		{"playing", func(context.Context) error { return nil }, pipeline.StatePlaying},
		{"paused", p.Pause, pipeline.StatePaused},
	} {
		if err := step.op(ctx); err != nil {
			t.Fatal(err)
		}
		if err := p.EnterPreview(ctx, graph.CategoryVideo); !errors.Is(err, graph.ErrInvalidState) {
			t.Errorf("preview while %s: %v", step.name, err)
		}
		if p.State() != step.state {
			t.Errorf("state %s, want %s", p.State(), step.state)
		}
	}

	if err := p.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	outs, _ := p.Outputs(ctx)
	if len(outs) != 1 || outs[0].State != pipeline.OutputPending {
		t.Errorf("outputs %+v", outs)
	}
	// preview again from preview switches category
	if err := p.EnterPreview(ctx, graph.CategoryAudio); err != nil {
		t.Errorf("preview from preview: %v", err)
	}
}

func TestFailedLiveCreateLeavesNoOutput(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, sim.RejectAdd("rec_0"))
	if err := p.EnterPreview(ctx, graph.CategoryVideo); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(ctx); err != nil {
		t.Fatal(err)
	}

	_, err := p.CreateStoreBranch(ctx, graph.CategoryVideo, "rec", t.TempDir()+"/v.mkv")
	if !errors.Is(err, graph.ErrAddingElement) {
		t.Fatalf("err = %v", err)
	}
	st, _ := p.Status(ctx)
	if len(st.Outputs) != 0 {
		t.Errorf("failed output still listed: %+v", st.Outputs)
	}
	for _, j := range st.Junctions {
		if !j.Placeholder {
			t.Errorf("junction %s lost its placeholder", j.Name)
		}
	}
	units, _ := p.Units(ctx)
	for _, u := range units {
		if u != pipeline.UnitVideoSource && u != pipeline.UnitAudioSource &&
			u != pipeline.UnitOverlay && u != pipeline.UnitSpeaker {
			t.Errorf("unexpected unit %s", u)
		}
	}
	if p.Graph().Container().ByName("queue_video_filesink_0") != nil {
		t.Error("queue of the failed branch left in the container")
	}
}

func TestPropertiesRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newPipeline(t, nil)

	if err := src.SetInputSource(ctx, graph.VideoSource{Transport: graph.VideoUSB, Location: "/dev/video2"}); err != nil {
		t.Fatal(err)
	}
	if err := src.SetInputSource(ctx, graph.AudioSource{Device: "alsa_input.usb"}); err != nil {
		t.Fatal(err)
	}
	if err := src.MuteInput(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := src.SetTextOverlay(ctx, "LIVE", "right", "bottom"); err != nil {
		t.Fatal(err)
	}
	if err := src.SetImageOverlay(ctx, pipeline.ImageOverlay{Location: "/srv/logo.png", OffsetX: 10, Alpha: 0.5}); err != nil {
		t.Fatal(err)
	}
	if _, err := src.CreateStreamBranch(ctx, graph.CategoryAudioVideo, "main",
		outputs.StreamParams{IP: "10.0.0.2", Port: 8000, Mount: "/main.webm"}); err != nil {
		t.Fatal(err)
	}

	units, err := src.Units(ctx)
	if err != nil {
		t.Fatal(err)
	}
	dst := newPipeline(t, nil)
	for _, unit := range units {
		props, err := src.Properties(ctx, unit)
		if err != nil {
			t.Fatal(err)
		}
		var got map[string]any
		if _, ok := props["kind"]; ok {
			info, err := dst.CreateOutput(ctx, props)
			if err != nil {
				t.Fatalf("%s: %v", unit, err)
			}
			got, err = dst.Properties(ctx, pipeline.OutputUnit(info.ID))
			if err != nil {
				t.Fatal(err)
			}
		} else {
			if err := dst.SetProperties(ctx, unit, props); err != nil {
				t.Fatalf("%s: %v", unit, err)
			}
			if got, err = dst.Properties(ctx, unit); err != nil {
				t.Fatal(err)
			}
		}
		if !reflect.DeepEqual(got, props) {
			t.Errorf("%s round trip\n got %v\nwant %v", unit, got, props)
		}
	}
}

func TestSetPropertiesErrors(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil)

	if err := p.SetProperties(ctx, "mixer", map[string]any{"x": 1}); !errors.Is(err, graph.ErrUnknownStage) {
		t.Errorf("unknown unit: %v", err)
	}
	if err := p.SetProperties(ctx, pipeline.OutputUnit("nope"), nil); !errors.Is(err, graph.ErrUnknownOutput) {
		t.Errorf("unknown output: %v", err)
	}
	if err := p.SetProperties(ctx, pipeline.UnitOverlay, map[string]any{"halignment": "middle"}); !errors.Is(err, graph.ErrInvalidArgument) {
		t.Errorf("bad alignment: %v", err)
	}
	if err := p.SetProperties(ctx, pipeline.UnitSpeaker, map[string]any{"mute": false}); err != nil {
		t.Fatal(err)
	}
	props, _ := p.Properties(ctx, pipeline.UnitSpeaker)
	if props["mute"] != false {
		t.Errorf("speaker %v", props)
	}
}
