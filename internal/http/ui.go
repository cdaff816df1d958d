package http

import nethttp "net/http"

func dashboardHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.URL.Path != "/" {
		nethttp.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write([]byte(dashboardHTML))
}

func faviconHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.WriteHeader(nethttp.StatusNoContent)
}

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Mailflow Dashboard</title>
  <style>
    :root {
      --brand: #0e5d8f;
      --brand-2: #0971b2;
      --bg: #f7f7f7;
      --paper: #fff;
      --text: #333;
      --muted: #777;
      --line: #ddd;
      --head: #f0f0f0;
      --ok-bg: #dff0d8;
      --ok-text: #3c763d;
      --bad-bg: #f2dede;
      --bad-text: #a94442;
      --warn-bg: #fcf8e3;
      --warn-text: #8a6d3b;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      background: var(--bg);
      color: var(--text);
      font-family: "Helvetica Neue", Helvetica, Arial, sans-serif;
      font-size: 14px;
      line-height: 1.42857143;
    }
    header {
      background: linear-gradient(to right, var(--brand) 0, var(--brand-2) 100%);
      border-bottom: 1px solid #0b4e79;
      color: #fff;
    }
    .container { margin: 0 auto; padding: 0 15px; max-width: 1680px; }
    .header-inner { min-height: 60px; display: flex; align-items: center; justify-content: space-between; gap: 16px; }
    .brand { font-size: 22px; font-weight: 300; }
    .brand strong { font-weight: 600; }
    .note { font-size: 13px; opacity: 0.9; text-align: right; }
    main { padding: 18px 0 32px; }
    .cards { display: flex; flex-wrap: wrap; gap: 12px; margin-bottom: 14px; }
    .card { background: var(--paper); border: 1px solid var(--line); padding: 10px 14px; min-width: 150px; }
    .card .label { color: var(--muted); font-size: 12px; text-transform: uppercase; }
    .card .value { font-size: 24px; font-weight: 600; }
    .tabs { display: flex; flex-wrap: wrap; gap: 8px; margin-bottom: 14px; border-bottom: 1px solid var(--line); padding-bottom: 8px; }
    .tab-btn { border: 1px solid #c7d7e5; background: #f3f8fc; color: var(--brand); padding: 6px 10px; font-size: 12px; font-weight: 600; cursor: pointer; }
    .tab-btn.active { background: var(--brand); color: #fff; border-color: var(--brand); }
    .tab-pane { display: none; background: var(--paper); border: 1px solid var(--line); padding: 12px; }
    .tab-pane.active { display: block; }
    .toolbar { display: flex; gap: 8px; align-items: center; margin-bottom: 10px; }
    .toolbar input { padding: 5px 8px; border: 1px solid var(--line); min-width: 260px; }
    .toolbar .meta { color: var(--muted); font-size: 12px; margin-left: auto; }
    table { width: 100%; border-collapse: collapse; font-size: 13px; }
    th { background: var(--head); text-align: left; padding: 6px 8px; border-bottom: 1px solid var(--line); }
    td { padding: 5px 8px; border-bottom: 1px solid #eee; vertical-align: top; }
    tr.expandable { cursor: pointer; }
    tr.expandable:hover td { background: #f5f9fc; }
    tr.failed td { background: var(--bad-bg); }
    tr.detail td { background: #fafafa; }
    .detail-list { margin: 0; padding-left: 0; list-style: none; font-family: Menlo, Consolas, monospace; font-size: 12px; }
    .detail-list li { padding: 2px 0; }
    .pill { display: inline-block; padding: 1px 8px; border-radius: 10px; font-size: 12px; }
    .pill.success, .pill.ok { background: var(--ok-bg); color: var(--ok-text); }
    .pill.danger, .pill.bad { background: var(--bad-bg); color: var(--bad-text); }
    .pill.warning { background: var(--warn-bg); color: var(--warn-text); }
    .btn { border: 1px solid #c7d7e5; background: #fff; color: var(--brand); padding: 3px 8px; cursor: pointer; font-size: 12px; }
    .admin-only { display: none; }
    body.admin .admin-only { display: inline-block; }
    .chart-wrap { margin-bottom: 18px; }
    canvas { width: 100%; height: 260px; border: 1px solid var(--line); background: #fff; }
    .err { color: var(--bad-text); font-size: 12px; }
  </style>
</head>
<body>
  <header>
    <div class="container header-inner">
      <div class="brand"><strong>Mailflow</strong> Dashboard</div>
      <div class="note"><span id="who">-</span><br /><span id="last-refresh">waiting for first refresh</span></div>
    </div>
  </header>
  <main class="container">
    <div class="cards">
      <div class="card"><div class="label">Queued</div><div class="value" id="q-total">-</div></div>
      <div class="card"><div class="label">Retry</div><div class="value" id="q-retry">-</div></div>
      <div class="card"><div class="label">Failed</div><div class="value" id="q-failed">-</div></div>
      <div class="card"><div class="label">Other</div><div class="value" id="q-other">-</div></div>
      <div class="card"><div class="label">Sent last hour</div><div class="value" id="m-sent">-</div></div>
      <div class="card"><div class="label">Received last hour</div><div class="value" id="m-recv">-</div></div>
    </div>

    <div class="tabs">
      <button class="tab-btn active" data-view="messageTracking">Message Tracking</button>
      <button class="tab-btn" data-view="smtp">SMTP Sessions</button>
      <button class="tab-btn" data-view="queueMessages">Queue</button>
      <button class="tab-btn" data-view="errorLogs">Error Logs</button>
      <button class="tab-btn" data-view="exchangeServices">Services</button>
      <button class="tab-btn" data-view="queueStatsChart">Charts</button>
      <button class="btn" id="refresh-now" style="margin-left:auto">Refresh now</button>
    </div>

    <section class="tab-pane active" id="pane-messageTracking">
      <div class="toolbar"><input id="tracking-q" placeholder="Search id, sender, recipient, subject" /><label><input type="checkbox" id="tracking-failed" /> failures only</label><span class="meta" id="tracking-meta"></span></div>
      <table><thead><tr><th>Time</th><th>Sender</th><th>Recipients</th><th>Subject</th><th>Event</th><th>Processing</th></tr></thead><tbody id="tracking-body"></tbody></table>
    </section>

    <section class="tab-pane" id="pane-smtp">
      <div class="toolbar"><input id="smtp-q" placeholder="Search transcript" /><span class="meta" id="smtp-meta"></span></div>
      <table><thead><tr><th>#</th><th>Start</th><th>From</th><th>To</th><th>Direction</th><th>Message Id</th></tr></thead><tbody id="smtp-body"></tbody></table>
    </section>

    <section class="tab-pane" id="pane-queueMessages">
      <h4>Queues</h4><div id="queue-stats"></div>
      <h4>Messages</h4><div id="queue-messages"></div>
    </section>

    <section class="tab-pane" id="pane-errorLogs"><div id="error-logs"></div></section>

    <section class="tab-pane" id="pane-exchangeServices">
      <div class="toolbar admin-only">
        <button class="btn" data-action="restart-exchange">Restart all Exchange services</button>
        <button class="btn" data-action="restart-iis">Restart IIS</button>
      </div>
      <table><thead><tr><th>Service</th><th>Status</th><th class="admin-only">Action</th></tr></thead><tbody id="services-body"></tbody></table>
    </section>

    <section class="tab-pane" id="pane-queueStatsChart">
      <div class="chart-wrap"><h4>Queue depth</h4><canvas id="chart-queue" width="1200" height="260"></canvas></div>
      <div class="chart-wrap"><h4>Mail volume</h4><canvas id="chart-mail" width="1200" height="260"></canvas></div>
    </section>
  </main>

  <script>
    const q = (s) => document.querySelector(s);
    const qq = (s) => Array.from(document.querySelectorAll(s));
    const text = (id, v) => document.getElementById(id).textContent = v;
    const esc = (v) => String(v == null ? "" : v).replace(/[&<>"']/g, (c) => ({"&":"&amp;","<":"&lt;",">":"&gt;","\"":"&quot;","'":"&#39;"}[c]));

    async function getJSON(url) {
      const r = await fetch(url);
      if (!r.ok) throw new Error(url + " -> " + r.status);
      return r.json();
    }

    async function sendJSON(method, url, body) {
      const r = await fetch(url, {method, headers: {"Content-Type": "application/json"}, body: body ? JSON.stringify(body) : undefined});
      if (!r.ok) throw new Error(url + " -> " + r.status);
      return r.json();
    }

    // Expanded rows per view; a view with any expanded row is reported so the
    // server holds its data.
    const expanded = {messageTracking: new Set(), smtp: new Set()};
    let activeView = "messageTracking";

    function reportInspection() {
      const list = Object.keys(expanded).filter((v) => expanded[v].size > 0);
      sendJSON("PUT", "/api/v1/views/state", {active_view: activeView, expanded: list}).catch(() => {});
    }

    function switchTab(view) {
      activeView = view;
      qq(".tab-btn[data-view]").forEach((b) => b.classList.toggle("active", b.dataset.view === view));
      qq(".tab-pane").forEach((p) => p.classList.toggle("active", p.id === "pane-" + view));
      reportInspection();
      loadView(view);
    }

    function renderTable(el, payload) {
      const t = payload.data;
      if (!t || !t.columns) { el.innerHTML = '<div class="err">no data</div>'; return; }
      let h = "<table><thead><tr>" + t.columns.map((c) => "<th>" + esc(c) + "</th>").join("") + "</tr></thead><tbody>";
      t.rows.forEach((row) => { h += "<tr>" + row.map((c) => "<td>" + esc(c) + "</td>").join("") + "</tr>"; });
      el.innerHTML = h + "</tbody></table>";
    }

    async function loadTracking() {
      const qs = new URLSearchParams({q: q("#tracking-q").value, failed: q("#tracking-failed").checked ? "true" : ""});
      const res = await getJSON("/api/v1/tracking/journeys?" + qs);
      text("tracking-meta", res.meta.count + " of " + res.meta.matched + " shown");
      const body = q("#tracking-body");
      body.innerHTML = res.data.map((j) =>
        '<tr class="expandable' + (j.has_failure ? " failed" : "") + '" data-id="' + esc(j.message_id) + '">' +
        "<td>" + esc(j.timestamp) + "</td><td>" + esc(j.sender) + "</td><td>" + esc(j.recipients) + "</td>" +
        "<td>" + esc(j.subject) + "</td><td>" + esc(j.primary_event.EventId) + "</td><td>" + esc(j.processing_time) + "</td></tr>").join("");
      expanded.messageTracking.clear();
      qq("#tracking-body tr.expandable").forEach((tr) => tr.addEventListener("click", () => toggleJourney(tr)));
    }

    async function toggleJourney(tr) {
      const id = tr.dataset.id;
      const next = tr.nextElementSibling;
      if (next && next.classList.contains("detail")) {
        next.remove();
        expanded.messageTracking.delete(id);
        reportInspection();
        return;
      }
      const res = await getJSON("/api/v1/tracking/journeys/" + encodeURIComponent(id));
      const items = res.data.detail.map((d) => "<li>" + esc(d.icon) + " " + esc(d.timestamp) + " <b>" + esc(d.event_id) + "</b> " +
        esc(d.description) + " (" + esc(d.source) + ") " + esc(d.subject) + "</li>").join("");
      tr.insertAdjacentHTML("afterend", '<tr class="detail"><td colspan="6"><ul class="detail-list">' + items + "</ul></td></tr>");
      expanded.messageTracking.add(id);
      reportInspection();
    }

    async function loadSMTP() {
      const qs = new URLSearchParams({q: q("#smtp-q").value, order: "desc"});
      const res = await getJSON("/api/v1/smtp/sessions?" + qs);
      text("smtp-meta", res.meta.count + " of " + res.meta.matched + " shown");
      q("#smtp-body").innerHTML = res.data.map((s) =>
        '<tr class="expandable" data-index="' + s.index + '"><td>' + s.sort_order + "</td><td>" + esc(s.start) + "</td><td>" +
        esc(s.from) + "</td><td>" + esc(s.to) + "</td><td>" + esc(s.direction) + "</td><td>" + esc(s.message_id) + "</td></tr>").join("");
      expanded.smtp.clear();
      qq("#smtp-body tr.expandable").forEach((tr) => tr.addEventListener("click", () => toggleSession(tr)));
    }

    async function toggleSession(tr) {
      const id = tr.dataset.index;
      const next = tr.nextElementSibling;
      if (next && next.classList.contains("detail")) {
        next.remove();
        expanded.smtp.delete(id);
        reportInspection();
        return;
      }
      const res = await getJSON("/api/v1/smtp/sessions/" + id);
      const items = (res.data.detail || []).map((d) => "<li>" + esc(d.timestamp) + " " + esc(d.direction) + " " + esc(d.data) + "</li>").join("");
      tr.insertAdjacentHTML("afterend", '<tr class="detail"><td colspan="6"><ul class="detail-list">' + items + "</ul></td></tr>");
      expanded.smtp.add(id);
      reportInspection();
    }

    async function loadSummary() {
      try {
        const s = (await getJSON("/api/v1/queue/summary")).data;
        text("q-total", s.total); text("q-retry", s.retry); text("q-failed", s.failed); text("q-other", s.other);
      } catch (e) {}
      try {
        const m = (await getJSON("/api/v1/mail/stats")).data;
        text("m-sent", m.SentLastHour); text("m-recv", m.ReceivedLastHour);
      } catch (e) {}
    }

    async function loadQueue() {
      getJSON("/api/v1/queue/stats").then((r) => renderTable(q("#queue-stats"), r)).catch(() => q("#queue-stats").innerHTML = '<div class="err">no data</div>');
      getJSON("/api/v1/queue/messages").then((r) => renderTable(q("#queue-messages"), r)).catch(() => q("#queue-messages").innerHTML = '<div class="err">no data</div>');
    }

    async function loadErrors() {
      getJSON("/api/v1/errors").then((r) => renderTable(q("#error-logs"), r)).catch(() => q("#error-logs").innerHTML = '<div class="err">no data</div>');
    }

    async function loadServices() {
      const res = await getJSON("/api/v1/services");
      q("#services-body").innerHTML = res.data.map((s) =>
        "<tr><td>" + esc(s.Name) + '</td><td><span class="pill ' + esc(s.CssClass) + '">' + esc(s.Status) + "</span></td>" +
        '<td class="admin-only"><button class="btn" data-action="restart-service" data-service="' + esc(s.Name) + '">Restart</button></td></tr>').join("");
    }

    // ChartHandle owns one canvas; update() redraws in place.
    class ChartHandle {
      constructor(canvas) { this.canvas = canvas; this.ctx = canvas.getContext("2d"); this.colors = ["#0e5d8f", "#f0ad4e", "#d9534f"]; }
      update(chart) {
        const c = this.ctx, W = this.canvas.width, H = this.canvas.height, pad = 30;
        c.clearRect(0, 0, W, H);
        const n = chart.labels.length;
        if (n === 0) return;
        let max = 1;
        chart.datasets.forEach((d) => d.data.forEach((v) => { if (v > max) max = v; }));
        const x = (i) => pad + (W - 2 * pad) * (n === 1 ? 0.5 : i / (n - 1));
        const y = (v) => H - pad - (H - 2 * pad) * (v / max);
        chart.datasets.forEach((d, k) => {
          c.strokeStyle = c.fillStyle = this.colors[k % this.colors.length];
          if (chart.kind === "bar") {
            const bw = Math.max(1, (W - 2 * pad) / n / chart.datasets.length - 1);
            d.data.forEach((v, i) => c.fillRect(x(i) + k * bw - bw, y(v), bw, H - pad - y(v)));
          } else {
            c.beginPath();
            d.data.forEach((v, i) => i === 0 ? c.moveTo(x(i), y(v)) : c.lineTo(x(i), y(v)));
            c.stroke();
          }
          c.fillText(d.label, pad + k * 140, 12);
        });
        c.fillStyle = "#777";
        c.fillText(chart.labels[0], pad, H - 8);
        c.fillText(chart.labels[n - 1], W - pad - 70, H - 8);
      }
    }
    const chartHandles = {};
    function chartHandle(id) {
      if (!chartHandles[id]) chartHandles[id] = new ChartHandle(document.getElementById(id));
      return chartHandles[id];
    }

    async function loadCharts() {
      getJSON("/api/v1/charts/queue").then((r) => chartHandle("chart-queue").update(r.data)).catch(() => {});
      getJSON("/api/v1/charts/mail").then((r) => chartHandle("chart-mail").update(r.data)).catch(() => {});
    }

    const loaders = {
      messageTracking: loadTracking,
      smtp: loadSMTP,
      queueStats: loadQueue,
      queueMessages: () => { loadQueue(); loadSummary(); },
      errorLogs: loadErrors,
      exchangeServices: loadServices,
      mailStats: loadSummary,
      queueStatsChart: loadCharts,
      mailStatsChart: loadCharts,
    };

    function loadView(view) {
      const fn = loaders[view];
      if (fn) Promise.resolve(fn()).catch((e) => console.error(e));
    }

    // A notice for a view that is not on screen only updates the summary cards.
    function onNotice(n) {
      text("last-refresh", "refreshed " + new Date(n.refreshed_at).toLocaleTimeString());
      if (n.view === "queueMessages" || n.view === "mailStats") loadSummary();
      const visible = n.view === activeView ||
        (activeView === "queueMessages" && n.view === "queueStats") ||
        (activeView === "queueStatsChart" && n.view === "mailStatsChart");
      if (!visible) return;
      if (expanded[n.view] && expanded[n.view].size > 0) return;
      loadView(n.view);
    }

    function connectFeed() {
      const proto = location.protocol === "https:" ? "wss://" : "ws://";
      const ws = new WebSocket(proto + location.host + "/api/v1/ws");
      ws.onmessage = (ev) => onNotice(JSON.parse(ev.data));
      ws.onclose = () => setTimeout(connectFeed, 5000);
    }

    document.addEventListener("click", (ev) => {
      const b = ev.target.closest("button[data-action]");
      if (!b) return;
      const action = b.dataset.action;
      const label = b.dataset.service || action;
      if (!confirm("Run " + action + " for " + label + "?")) return;
      const qs = b.dataset.service ? "?service=" + encodeURIComponent(b.dataset.service) : "";
      sendJSON("POST", "/api/v1/actions/" + action + qs).then(() => alert("Triggered " + label)).catch((e) => alert(e.message));
    });

    qq(".tab-btn[data-view]").forEach((b) => b.addEventListener("click", () => switchTab(b.dataset.view)));
    q("#refresh-now").addEventListener("click", () => sendJSON("POST", "/api/v1/refresh").catch(() => {}));
    q("#tracking-q").addEventListener("input", () => loadTracking());
    q("#tracking-failed").addEventListener("change", () => loadTracking());
    q("#smtp-q").addEventListener("input", () => loadSMTP());

    getJSON("/api/v1/whoami").then((me) => {
      text("who", me.username ? me.username + (me.admin ? " (admin)" : "") : "anonymous");
      document.body.classList.toggle("admin", !!me.admin);
    }).catch(() => {});

    reportInspection();
    loadSummary();
    loadView(activeView);
    connectFeed();
  </script>
</body>
</html>
`
