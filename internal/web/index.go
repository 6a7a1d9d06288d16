package web

// Single wallet card fed by /wallet and /wallet/stream.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Cobrand Wallet</title>
  <link href="https://fonts.googleapis.com/css2?family=Space+Mono:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root { --bg:#ffffff; --ink:#111111; --ink-mid:#4d4d4d; --panel:#f6f6f6; }
    * { box-sizing:border-box; }
    body {
      margin:0; min-height:100vh; display:flex; align-items:center; justify-content:center;
      padding:2rem; background:var(--bg); color:var(--ink);
      font-family:'Space Mono','JetBrains Mono',monospace;
    }
    #app {
      width:min(720px, 96vw); background:var(--panel); border:3px solid var(--ink);
      padding:2rem; box-shadow:12px 12px 0 rgba(0,0,0,.15);
      display:flex; flex-direction:column; gap:1.5rem;
    }
    header { display:flex; justify-content:space-between; align-items:flex-start; gap:1rem; }
    .eyebrow { font-size:.7rem; text-transform:uppercase; letter-spacing:.2em; margin:0; }
    .status {
      font-size:.65rem; text-transform:uppercase; letter-spacing:.1em;
      border:2px solid var(--ink); padding:.4rem .9rem; background:#fff;
    }
    .balance { border:3px solid var(--ink); padding:1.2rem; background:#fff; }
    .balance .label { font-size:.62rem; text-transform:uppercase; letter-spacing:.2em; color:var(--ink-mid); }
    .balance .value { margin-top:.8rem; font-size:1.8rem; font-weight:700; letter-spacing:.08em; }
    .meta { display:flex; flex-wrap:wrap; gap:.5rem; }
    .pill { font-size:.6rem; letter-spacing:.12em; text-transform:uppercase; padding:.35rem .7rem; border:2px solid var(--ink); background:#fefefe; }
    #history { font-size:.7rem; color:var(--ink-mid); max-height:240px; overflow-y:auto; }
  </style>
</head>
<body>
  <div id="app">
    <header>
      <p class="eyebrow" id="who">cobrand wallet</p>
      <div id="sse-status" class="status">Connecting…</div>
    </header>
    <section class="balance">
      <div class="label">Current balance</div>
      <div class="value" id="balance">—</div>
    </section>
    <div class="meta">
      <span class="pill" id="wallet">wallet —</span>
      <span class="pill" id="state">status —</span>
      <span class="pill" id="revision">rev —</span>
    </div>
    <div id="history"></div>
  </div>
<script>
const statusEl = document.getElementById('sse-status');
const historyEl = document.getElementById('history');

function render(snap, revision){
  document.getElementById('balance').textContent = snap.balance + ' ' + (snap.currency || '');
  document.getElementById('wallet').textContent = 'wallet ' + snap.walletId;
  document.getElementById('state').textContent = 'status ' + (snap.status || '—');
  document.getElementById('revision').textContent = 'rev ' + revision;
}

function clearWallet(){
  document.getElementById('balance').textContent = '—';
  document.getElementById('wallet').textContent = 'wallet —';
  document.getElementById('state').textContent = 'status —';
}

fetch('/session').then(r => r.ok ? r.json() : null).then(s => {
  if(s){ document.getElementById('who').textContent = (s.name || s.username) + ' · ' + s.userType; }
});

function connect(){
  const source = new EventSource('/wallet/stream');
  statusEl.textContent = 'Live';
  source.addEventListener('wallet', (event) => {
    const snap = JSON.parse(event.data);
    render(snap, snap.revision);
    const row = document.createElement('div');
    row.textContent = new Date(snap.ts).toLocaleTimeString([], { hour12:false }) + '  ' + snap.balance + ' ' + snap.currency;
    historyEl.insertBefore(row, historyEl.firstChild);
  });
  source.addEventListener('invalidated', clearWallet);
  source.addEventListener('no_data', () => { statusEl.textContent = 'No wallet yet'; });
  source.addEventListener('error', () => {
    statusEl.textContent = 'Reconnecting…';
    source.close();
    setTimeout(connect, 2000);
  });
}

connect();
</script>
</body>
</html>`
