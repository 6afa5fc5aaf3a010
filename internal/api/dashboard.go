package api

import "net/http"

// dashboardHTML is the single-page monitor. It connects to /ws and renders
// the live memory stats feed.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Agentic Worm Memory System</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 0; background: #0f1419; color: #e6e6e6; }
  header { padding: 16px 24px; background: #1a222c; border-bottom: 1px solid #2b3642; }
  h1 { margin: 0; font-size: 20px; }
  main { padding: 24px; display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 16px; }
  .card { background: #1a222c; border: 1px solid #2b3642; border-radius: 8px; padding: 16px; }
  .card h2 { margin: 0 0 8px; font-size: 13px; text-transform: uppercase; color: #8aa0b5; }
  .value { font-size: 28px; font-weight: 600; }
  #insights { grid-column: 1 / -1; }
  #insights li { margin: 4px 0; }
  .dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-right: 6px; background: #e05252; }
  .dot.live { background: #3fb950; }
</style>
</head>
<body>
<header><h1><span id="conn" class="dot"></span>Agentic Worm Memory System</h1></header>
<main>
  <div class="card"><h2>Episodic</h2><div class="value" id="episodic_count">-</div></div>
  <div class="card"><h2>Spatial</h2><div class="value" id="spatial_count">-</div></div>
  <div class="card"><h2>Semantic</h2><div class="value" id="semantic_count">-</div></div>
  <div class="card"><h2>Procedural</h2><div class="value" id="procedural_count">-</div></div>
  <div class="card"><h2>Success Rate</h2><div class="value" id="success_rate">-</div></div>
  <div class="card"><h2>Memory Confidence</h2><div class="value" id="memory_confidence">-</div></div>
  <div class="card" id="insights"><h2>Insights</h2><ul id="insight_list"></ul></div>
</main>
<script>
  const proto = location.protocol === "https:" ? "wss:" : "ws:";
  const worm = new URLSearchParams(location.search).get("worm") || "";
  const ws = new WebSocket(proto + "//" + location.host + "/ws" + (worm ? "?worm=" + worm : ""));
  ws.onopen = () => document.getElementById("conn").classList.add("live");
  ws.onclose = () => document.getElementById("conn").classList.remove("live");
  ws.onmessage = (ev) => {
    const msg = JSON.parse(ev.data);
    if (msg.type !== "memory_stats") return;
    const s = msg.data;
    for (const k of ["episodic_count", "spatial_count", "semantic_count", "procedural_count"]) {
      document.getElementById(k).textContent = s[k];
    }
    document.getElementById("success_rate").textContent = (s.success_rate * 100).toFixed(1) + "%";
    document.getElementById("memory_confidence").textContent = (s.memory_confidence * 100).toFixed(1) + "%";
    const list = document.getElementById("insight_list");
    list.innerHTML = "";
    for (const insight of s.insights || []) {
      const li = document.createElement("li");
      li.textContent = insight;
      list.appendChild(li);
    }
  };
</script>
</body>
</html>
`

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}
