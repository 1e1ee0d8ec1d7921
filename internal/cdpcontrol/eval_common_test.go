package cdpcontrol

import (
	"strings"
	"testing"
)

func TestJSStringEscapes(t *testing.T) {
	if got := jsString("hello\nworld"); got != "\"hello\\nworld\"" {
		t.Fatalf("jsString = %q, want %q", got, "\"hello\\nworld\"")
	}
	if got := jsString(`a[href="x"]`); got != `"a[href=\"x\"]"` {
		t.Fatalf("jsString = %q", got)
	}
}

func TestJSEvalWrapper(t *testing.T) {
	expr := wrapJSEval("return 1;")
	if !strings.HasPrefix(expr, "(function(){\ntry {") {
		t.Fatalf("unexpected wrapper: %s", expr)
	}
	if !strings.Contains(expr, `error_code:"EVAL_FAILURE"`) {
		t.Fatalf("wrapper lost failure envelope: %s", expr)
	}
}

func TestElementScriptsReportNotFound(t *testing.T) {
	for name, js := range map[string]string{
		"click": jsClickElement("#next"),
		"hide":  jsHideElement("#next"),
		"show":  jsShowElement("#next"),
	} {
		if !containsAll(js, `document.querySelector(sel)`, `"#next"`, CodeElementNotFound) {
			t.Fatalf("%s script missing lookup or not-found branch: %s", name, js)
		}
	}
	if !containsAll(jsClickElement("a"), "elementFromPoint", `"mouseover", "mousedown", "mouseup", "click"`, "buttons: 1") {
		t.Fatal("click script does not dispatch the pointer sequence")
	}
	if !strings.Contains(jsHideElement("a"), `visibility = "hidden"`) || !strings.Contains(jsShowElement("a"), `visibility = ""`) {
		t.Fatal("hide/show scripts do not toggle visibility")
	}
}

func TestRecorderScript(t *testing.T) {
	tests := []struct {
		mode RecorderMode
		tag  string
	}{
		{ModePick, "element-selected"},
		{ModeRecordNext, "next-element-selected"},
		{ModeRecordPrev, "prev-element-selected"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.Tag(); got != tt.tag {
				t.Fatalf("Tag() = %q, want %q", got, tt.tag)
			}
			js := jsStartRecorder(tt.mode, 3)
			if !containsAll(js, jsString(tt.tag), "var frameIndex = 3;", jsString(bindingName), "_cssPath", "window.__clickshot.teardown()") {
				t.Fatalf("recorder script incomplete: %s", js)
			}
		})
	}
	if !strings.Contains(jsStartRecorder(ModePick, 0), "2px solid #007bff") {
		t.Fatal("pick mode does not outline hovered elements")
	}
}
