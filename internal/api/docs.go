package api

// docsHTML renders /openapi.json with Stoplight Elements in dark mode.
const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>clickshot API</title>
  <link rel="stylesheet" href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    html, body { height: 100%; margin: 0; background: #0d1117; }
    body { display: flex; flex-direction: column; }
    nav { display: flex; gap: 16px; align-items: center; padding: 8px 16px;
          border-bottom: 1px solid #30363d; font: 13px system-ui, sans-serif; }
    nav strong { color: #e6edf3; margin-right: auto; }
    nav a { color: #58a6ff; text-decoration: none; }
    elements-api { flex: 1; min-height: 0; }
  </style>
</head>
<body>
  <nav>
    <strong>clickshot</strong>
    <a href="/openapi.json">openapi.json</a>
    <a href="/docs/events">Event stream</a>
  </nav>
  <elements-api apiDescriptionUrl="/openapi.json" router="hash" layout="sidebar" darkMode />
</body>
</html>`
