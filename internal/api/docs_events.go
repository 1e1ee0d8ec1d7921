package api

const eventsDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Event Stream - clickshot</title>
  <style>
    body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; font-size: 14px; line-height: 1.6; background: #0d1117; color: #c9d1d9; }
    main { max-width: 860px; margin: 0 auto; padding: 24px; }
    a { color: #58a6ff; }
    code, pre { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; background: #161b22; border-radius: 4px; }
    pre { padding: 12px; border: 1px solid #30363d; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border-bottom: 1px solid #30363d; padding: 6px 8px; text-align: left; }
  </style>
</head>
<body>
<main>
  <p><a href="/docs">REST API Docs</a></p>
  <h1>Event Stream</h1>
  <p>Recorder selections, location changes and run progress are pushed as Server-Sent Events.</p>

  <h2>Endpoint</h2>
  <pre>GET /api/v1/events?tags=process-complete,process-error&amp;tab=&lt;tab_id&gt;</pre>
  <table>
    <tr><th>Parameter</th><th>Meaning</th></tr>
    <tr><td><code>tags</code></td><td>Comma separated tag filter. Omit to receive every tag.</td></tr>
    <tr><td><code>tab</code></td><td>Only events for this tab id.</td></tr>
  </table>

  <h2>Tags</h2>
  <table>
    <tr><th>Tag</th><th>Data</th></tr>
    <tr><td><code>element-selected</code></td><td>Selection picked in pick mode, stored as the next element</td></tr>
    <tr><td><code>next-element-selected</code></td><td>Selection recorded as the next element</td></tr>
    <tr><td><code>prev-element-selected</code></td><td>Selection recorded as the previous element</td></tr>
    <tr><td><code>location-selected</code></td><td>Display name of the granted directory</td></tr>
    <tr><td><code>process-started</code></td><td>Run id, clicks and save mode</td></tr>
    <tr><td><code>process-complete</code></td><td>Completion message</td></tr>
    <tr><td><code>process-error</code></td><td>Error message; no completion follows</td></tr>
  </table>

  <h2>Format</h2>
  <pre>event: next-element-selected
data: {"tag":"next-element-selected","tab_id":"A1B2...","time":"2024-05-01T12:00:00Z","data":{"selector":"div#pager &gt; a:nth-of-type(2)","frameId":0}}</pre>

  <h2>Example</h2>
  <pre>const es = new EventSource("/api/v1/events?tags=process-complete,process-error");
es.addEventListener("process-complete", (e) =&gt; console.log(JSON.parse(e.data)));</pre>
  <pre>curl -N http://127.0.0.1:8188/api/v1/events</pre>
</main>
</body>
</html>`
