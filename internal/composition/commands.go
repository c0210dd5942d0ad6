package composition

import (
	"encoding/json"
	"fmt"
)

// Command is one composition-state script sent to a render surface. Await
// means the script yields a promise whose settlement marks completion.
type Command struct {
	Name   string
	Script string
	Await  bool
}

// Command names, used in logs and surface errors.
const (
	CmdEvaluationMode = "evaluation_mode"
	CmdQuery          = "query_compositions"
	CmdBundleReady    = "bundle_ready"
	CmdSetComposition = "set_composition"
	CmdSetFrame       = "set_frame"
	CmdPaintComplete  = "paint_complete"
)

// EvaluationMode switches the bundle into metadata evaluation.
func EvaluationMode() Command {
	return Command{
		Name:   CmdEvaluationMode,
		Script: `window.remotion_setBundleMode({type: 'evaluation'})`,
	}
}

// QueryCompositions lists the bundle's compositions as a JSON string.
func QueryCompositions() Command {
	return Command{
		Name:   CmdQuery,
		Script: `window.getStaticCompositions().then((cs) => JSON.stringify(cs))`,
		Await:  true,
	}
}

// BundleReady resolves once the bundle has registered its entry points.
func BundleReady() Command {
	return Command{
		Name: CmdBundleReady,
		Script: `new Promise((resolve) => {
  const check = () => {
    if (typeof window.remotion_setBundleMode === 'function') {
      resolve(true);
      return;
    }
    setTimeout(check, 10);
  };
  check();
})`,
		Await: true,
	}
}

// SetComposition puts the bundle into composition mode for d. Reissuing it
// with the same descriptor leaves the surface in the same state.
func SetComposition(d Descriptor) Command {
	props := d.ResolvedProps
	if props == "" {
		props = d.DefaultProps
	}
	if props == "" {
		props = "{}"
	}

	return Command{
		Name: CmdSetComposition,
		Script: fmt.Sprintf(`window.remotion_setBundleMode({
  type: 'composition',
  compositionName: %s,
  serializedResolvedPropsWithSchema: %s,
  compositionDurationInFrames: %d,
  compositionFps: %d,
  compositionHeight: %d,
  compositionWidth: %d
})`, quote(d.ID), quote(props), d.TotalFrames, d.FPS, d.Height, d.Width),
	}
}

// SetFrame seeks composition id to frame index.
func SetFrame(index uint32, id string) Command {
	return Command{
		Name:   CmdSetFrame,
		Script: fmt.Sprintf(`window.remotion_setFrame(%d, %s)`, index, quote(id)),
	}
}

// PaintComplete resolves after the bundle reports ready and two animation
// frames have been presented.
func PaintComplete() Command {
	return Command{
		Name: CmdPaintComplete,
		Script: `new Promise((resolve) => {
  const painted = () => requestAnimationFrame(() => requestAnimationFrame(() => resolve(true)));
  const check = () => {
    if (window.remotion_renderReady === false) {
      setTimeout(check, 5);
      return;
    }
    painted();
  };
  check();
})`,
		Await: true,
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
