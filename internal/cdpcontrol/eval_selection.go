package cdpcontrol

import "fmt"

// jsRecorderTeardown removes whatever recorder is installed in this world.
const jsRecorderTeardown = `
if (window.__clickshot && typeof window.__clickshot.teardown === "function") {
  window.__clickshot.teardown();
}
window.__clickshot = null;
`

// jsStartRecorder installs the listeners for mode in the current frame. The
// report carries frameIndex so the controller can replay the click in the
// same frame later.
func jsStartRecorder(mode RecorderMode, frameIndex int) string {
	return wrapJSEval(jsCSSPathHelper + jsRecorderTeardown + fmt.Sprintf(`
var mode = %s;
var tag = %s;
var frameIndex = %d;
var handlers = [];
var hovered = null;

function clearOutline() {
  if (hovered) { hovered.style.outline = ""; hovered = null; }
}
function teardown() {
  clearOutline();
  for (var i = 0; i < handlers.length; i++) {
    document.removeEventListener(handlers[i].type, handlers[i].fn, true);
  }
  handlers = [];
  window.__clickshot = null;
}
function on(type, fn) {
  document.addEventListener(type, fn, true);
  handlers.push({type: type, fn: fn});
}
function report(target) {
  var selector = _cssPath(target);
  if (!selector) return;
  window[%s](JSON.stringify({tag: tag, selector: selector, frameId: frameIndex}));
}

if (mode === %s) {
  on("mouseover", function(e) {
    clearOutline();
    hovered = e.target;
    if (hovered && hovered.style) hovered.style.outline = "2px solid #007bff";
  });
  on("click", function(e) {
    e.preventDefault();
    e.stopPropagation();
    var target = e.target;
    teardown();
    report(target);
  });
} else {
  on("click", function(e) {
    var target = e.target;
    teardown();
    report(target);
  });
}

window.__clickshot = {mode: mode, teardown: teardown};
return JSON.stringify({ok:true,data:{status:"selection started",mode:mode}});
`, jsString(string(mode)), jsString(mode.Tag()), frameIndex, jsString(bindingName), jsString(string(ModePick))))
}

func jsCancelRecorder() string {
	return wrapJSEval(jsRecorderTeardown + `
return JSON.stringify({ok:true,data:{status:"selection cancelled"}});
`)
}
