package server

// chatPage is the thin built-in chat client: conversation rendering, a
// new-chat button that rotates the thread id, and a per-reply debug panel
// showing the message trace and middleware events.
const chatPage = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Ava Travel Assistant</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 0; background: #f4f5f7; color: #1f2430; }
  header { display: flex; justify-content: space-between; align-items: center;
           padding: 12px 20px; background: #1f2430; color: #fff; }
  header h1 { font-size: 16px; margin: 0; }
  header button { background: #3b4252; color: #fff; border: 0; border-radius: 6px;
                  padding: 6px 12px; cursor: pointer; }
  main { max-width: 760px; margin: 0 auto; padding: 16px; }
  .msg { margin: 10px 0; padding: 10px 14px; border-radius: 10px; white-space: pre-wrap; }
  .user { background: #dbe7ff; margin-left: 15%; }
  .assistant { background: #fff; margin-right: 15%; border: 1px solid #e2e4e9; }
  .error { background: #ffe2e2; }
  details { margin: 4px 0 12px; font-size: 12px; color: #555; }
  details pre { background: #282c34; color: #d7dae0; padding: 10px; border-radius: 6px; overflow-x: auto; }
  form { display: flex; gap: 8px; margin-top: 16px; }
  input[type=text] { flex: 1; padding: 10px; border: 1px solid #c6c9d2; border-radius: 8px; }
  form button { padding: 10px 18px; border: 0; border-radius: 8px; background: #3459e6; color: #fff; cursor: pointer; }
  label.debug { font-size: 12px; display: inline-flex; align-items: center; gap: 4px; }
</style>
</head>
<body>
<header>
  <h1>Ava Travel Assistant</h1>
  <div>
    <label class="debug"><input type="checkbox" id="debug"> debug trace</label>
    <button id="newchat">New chat</button>
  </div>
</header>
<main>
  <div id="log"></div>
  <form id="form">
    <input type="text" id="input" placeholder="Where are you headed?" autocomplete="off" autofocus>
    <button type="submit">Send</button>
  </form>
</main>
<script>
let threadId = crypto.randomUUID();
const log = document.getElementById('log');
const form = document.getElementById('form');
const input = document.getElementById('input');
const debug = document.getElementById('debug');

document.getElementById('newchat').addEventListener('click', () => {
  threadId = crypto.randomUUID();
  log.innerHTML = '';
  input.focus();
});

function addMessage(cls, text) {
  const div = document.createElement('div');
  div.className = 'msg ' + cls;
  div.textContent = text;
  log.appendChild(div);
  div.scrollIntoView();
  return div;
}

function addDebug(payload) {
  const details = document.createElement('details');
  const summary = document.createElement('summary');
  summary.textContent = 'debug trace (' + payload.middleware_events.length + ' events)';
  details.appendChild(summary);
  const pre = document.createElement('pre');
  pre.textContent = JSON.stringify({debug: payload.debug, middleware_events: payload.middleware_events}, null, 2);
  details.appendChild(pre);
  log.appendChild(details);
}

form.addEventListener('submit', async (ev) => {
  ev.preventDefault();
  const text = input.value.trim();
  if (!text) return;
  input.value = '';
  addMessage('user', text);
  const pending = addMessage('assistant', '...');
  try {
    const resp = await fetch('/completions', {
      method: 'POST',
      headers: {'Content-Type': 'application/json'},
      body: JSON.stringify({thread_id: threadId, input: text}),
    });
    const payload = await resp.json();
    if (!resp.ok) {
      pending.className = 'msg error';
      pending.textContent = payload.error || 'Request failed.';
      return;
    }
    pending.textContent = payload.choices[0].message.content;
    if (debug.checked) addDebug(payload);
  } catch (err) {
    pending.className = 'msg error';
    pending.textContent = 'Request failed: ' + err;
  }
});
</script>
</body>
</html>`
