package cdpcontrol

// jsClickElement replays a click the way a pointer would deliver it: on the
// topmost element at the center of the target's box.
func jsClickElement(selector string) string {
	return wrapJSEval(jsFindElement(selector) + `
var rect = el.getBoundingClientRect();
var x = rect.left + rect.width / 2;
var y = rect.top + rect.height / 2;
var target = document.elementFromPoint(x, y) || el;
var types = ["mouseover", "mousedown", "mouseup", "click"];
for (var i = 0; i < types.length; i++) {
  target.dispatchEvent(new MouseEvent(types[i], {
    view: window, bubbles: true, cancelable: true, clientX: x, clientY: y, buttons: 1
  }));
}
return JSON.stringify({ok:true,data:{status:"clicked"}});
`)
}

func jsHideElement(selector string) string {
	return wrapJSEval(jsFindElement(selector) + `
el.style.visibility = "hidden";
return JSON.stringify({ok:true,data:{status:"hidden"}});
`)
}

func jsShowElement(selector string) string {
	return wrapJSEval(jsFindElement(selector) + `
el.style.visibility = "";
return JSON.stringify({ok:true,data:{status:"shown"}});
`)
}
