package composition

import (
	"strings"
	"testing"
)

func TestSetCompositionQuotesArguments(t *testing.T) {
	d := Descriptor{
		ID:            `It's "quoted"`,
		Width:         640,
		Height:        360,
		FPS:           30,
		TotalFrames:   90,
		ResolvedProps: `{"title":"a'b"}`,
	}

	cmd := SetComposition(d)
	if cmd.Name != CmdSetComposition || cmd.Await {
		t.Fatalf("unexpected command %+v", cmd)
	}

	for _, want := range []string{
		`compositionName: "It's \"quoted\""`,
		`serializedResolvedPropsWithSchema: "{\"title\":\"a'b\"}"`,
		"compositionDurationInFrames: 90",
		"compositionFps: 30",
		"compositionHeight: 360",
		"compositionWidth: 640",
	} {
		if !strings.Contains(cmd.Script, want) {
			t.Errorf("expected %q in script:\n%s", want, cmd.Script)
		}
	}
}

func TestSetCompositionDeterministic(t *testing.T) {
	d := Descriptor{ID: "HelloWorld", Width: 1, Height: 1, FPS: 30, TotalFrames: 10}
	if SetComposition(d) != SetComposition(d) {
		t.Error("identical descriptors must yield identical commands")
	}
	if !strings.Contains(SetComposition(d).Script, `serializedResolvedPropsWithSchema: "{}"`) {
		t.Error("expected empty props object when none are set")
	}
}

func TestSetFrame(t *testing.T) {
	cmd := SetFrame(42, "HelloWorld")
	if cmd.Script != `window.remotion_setFrame(42, "HelloWorld")` {
		t.Errorf("unexpected script %s", cmd.Script)
	}
}

func TestAwaitedCommands(t *testing.T) {
	for _, cmd := range []Command{QueryCompositions(), BundleReady(), PaintComplete()} {
		if !cmd.Await {
			t.Errorf("%s should await its promise", cmd.Name)
		}
	}
	if EvaluationMode().Await {
		t.Error("evaluation mode is a plain call")
	}
}
