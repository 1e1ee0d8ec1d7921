package cdpcontrol

import "encoding/json"

// worldName names the isolated script world every command runs in. Page
// scripts cannot see or tamper with globals defined there.
const worldName = "__clickshot_world"

// bindingName is the function exposed to the isolated world for recorder reports.
const bindingName = "__clickshotReport"

// jsCSSPathHelper provides _cssPath(el): the page-side selector generator.
// It must produce the same path as selector.Generate for the same element.
const jsCSSPathHelper = `
function _cssPath(el) {
  if (!el || el.nodeType !== Node.ELEMENT_NODE) return "";
  var path = [];
  while (el && el.nodeType === Node.ELEMENT_NODE) {
    var seg = el.nodeName.toLowerCase();
    if (el.id) { path.unshift(seg + "#" + el.id); break; }
    var sib = el, nth = 1;
    while ((sib = sib.previousElementSibling)) {
      if (sib.nodeName.toLowerCase() === seg) nth++;
    }
    if (nth !== 1) seg += ":nth-of-type(" + nth + ")";
    path.unshift(seg);
    el = el.parentNode;
  }
  return path.join(" > ");
}
`

// jsFindElement resolves sel or returns the not-found envelope from the IIFE.
func jsFindElement(selector string) string {
	return `
var sel = ` + jsString(selector) + `;
var el = document.querySelector(sel);
if (!el) return JSON.stringify({ok:false,error_code:"` + CodeElementNotFound + `",error_message:"element not found: " + sel});
`
}

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func wrapJSEval(body string) string {
	return "(function(){\n" + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}
