package web

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aperturerobotics/go-jsdos/bundle"
	"github.com/aperturerobotics/go-jsdos/engine"
	"github.com/aperturerobotics/go-jsdos/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyPress struct {
	code    int
	pressed bool
}

type fakeInstance struct {
	cfg    bundle.Config
	frames chan engine.Frame
	keys   chan keyPress
	once   sync.Once
}

func newFakeInstance(cfg bundle.Config) *fakeInstance {
	return &fakeInstance{
		cfg:    cfg,
		frames: make(chan engine.Frame, 4),
		keys:   make(chan keyPress, 16),
	}
}

func (i *fakeInstance) Config(context.Context) (bundle.Config, error) {
	return i.cfg, nil
}

func (i *fakeInstance) Exit(context.Context) error {
	i.once.Do(func() { close(i.frames) })
	return nil
}

func (i *fakeInstance) Frames() <-chan engine.Frame {
	return i.frames
}

func (i *fakeInstance) SendKey(code int, pressed bool) {
	i.keys <- keyPress{code: code, pressed: pressed}
}

type testServer struct {
	srv       *httptest.Server
	toolkit   *Toolkit
	instances chan *fakeInstance
}

func writeBundle(t *testing.T, jsdosJSON string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".jsdos"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".jsdos", "jsdos.json"), []byte(jsdosJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "GAME.EXE"), []byte("MZ"), 0o644))
	return dir
}

func newTestServer(t *testing.T, opts ...HandlerOption) *testServer {
	t.Helper()
	ts := &testServer{
		toolkit:   NewToolkit(bundle.NewResolver()),
		instances: make(chan *fakeInstance, 4),
	}
	eng := session.EngineFunc(func(_ context.Context, b *bundle.Bundle) (session.Instance, error) {
		ci := newFakeInstance(b.Config)
		ts.instances <- ci
		return ci, nil
	})
	registry := session.NewRegistry(func(root string) *session.Controller {
		return session.New(root, eng, ts.toolkit)
	})
	ts.srv = httptest.NewServer(NewHandler(ts.toolkit, registry, opts...))
	t.Cleanup(func() {
		_ = registry.Close(context.Background())
		ts.srv.Close()
	})
	return ts
}

func (ts *testServer) dial(t *testing.T, root string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/" + root
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (ts *testServer) post(t *testing.T, path string, body any) (int, statusResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(ts.srv.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var status statusResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	}
	return resp.StatusCode, status
}

// readControl reads messages until a control message of type kind arrives.
func readControl(t *testing.T, conn *websocket.Conn, kind string) controlMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		mt, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if mt != websocket.TextMessage {
			continue
		}
		var msg controlMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == kind {
			return msg
		}
	}
}

func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		mt, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if mt == websocket.BinaryMessage {
			return data
		}
	}
}

func sendInput(t *testing.T, conn *websocket.Conn, msg inputMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func receiveKey(t *testing.T, ci *fakeInstance) keyPress {
	t.Helper()
	select {
	case k := <-ci.keys:
		return k
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for key")
		return keyPress{}
	}
}

func TestHandler_RunStreamAndStop(t *testing.T) {
	ts := newTestServer(t)
	dir := writeBundle(t, `{"gestures":[{"event":"fire","key":"space"}]}`)

	conn := ts.dial(t, "main")
	overlay := readControl(t, conn, TypeOverlay)
	require.NotNil(t, overlay.Visible)
	assert.True(t, *overlay.Visible)

	code, status := ts.post(t, "/api/sessions/main/run", runRequest{Bundle: dir})
	require.Equal(t, http.StatusOK, code, status.Error)
	assert.Equal(t, "running", status.State)
	assert.Equal(t, 1, status.Clients)

	gestures := readControl(t, conn, TypeGestures)
	assert.NotNil(t, gestures.Settings)
	overlay = readControl(t, conn, TypeOverlay)
	require.NotNil(t, overlay.Visible)
	assert.False(t, *overlay.Visible)

	var ci *fakeInstance
	select {
	case ci = <-ts.instances:
	default:
		t.Fatal("no instance started")
	}

	ci.frames <- engine.Frame{Width: 2, Height: 2, Y: 1, Rows: 1, Pix: make([]byte, 8)}
	data := readBinary(t, conn)
	require.Len(t, data, 9+8)
	assert.Equal(t, TagFrame, data[0])
	assert.EqualValues(t, 2, binary.LittleEndian.Uint16(data[1:]))
	assert.EqualValues(t, 1, binary.LittleEndian.Uint16(data[5:]))

	sendInput(t, conn, inputMessage{Type: TypeKey, Code: 37, Pressed: true})
	assert.Equal(t, keyPress{code: engine.KeyLeft, pressed: true}, receiveKey(t, ci))

	sendInput(t, conn, inputMessage{Type: TypeGesture, Event: "fire", Pressed: false})
	assert.Equal(t, keyPress{code: engine.KeySpace, pressed: false}, receiveKey(t, ci))

	code, status = ts.post(t, "/api/sessions/main/stop", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", status.State)

	overlay = readControl(t, conn, TypeOverlay)
	require.NotNil(t, overlay.Visible)
	assert.True(t, *overlay.Visible)
}

func TestHandler_Status(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/api/sessions/side")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "side", status.Root)
	assert.Equal(t, "idle", status.State)
	assert.Zero(t, status.Clients)
}

func TestHandler_Index(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestHandler_LocatorPolicy(t *testing.T) {
	ts := newTestServer(t, WithLocatorPolicy(func(string) error {
		return ErrLocatorDenied
	}))

	code, status := ts.post(t, "/api/sessions/main/run", runRequest{Bundle: "/etc"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "idle", status.State)
	assert.Equal(t, ErrLocatorDenied.Error(), status.Error)
	assert.Empty(t, ts.instances)
}

func TestHandler_BadRunRequest(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.post(t, "/api/sessions/main/run", map[string]string{"bundle": ""})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandler_RunFailureNotifiesPage(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "main")
	readControl(t, conn, TypeOverlay)

	missing := filepath.Join(t.TempDir(), "missing.zip")
	code, status := ts.post(t, "/api/sessions/main/run", runRequest{Bundle: missing})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "idle", status.State)

	msg := readControl(t, conn, TypeError)
	assert.NotEmpty(t, msg.Message)
}

func TestGestureBindings(t *testing.T) {
	b, err := gestureBindings(nil)
	require.NoError(t, err)
	assert.Empty(t, b)

	b, err = gestureBindings(false)
	require.NoError(t, err)
	assert.Empty(t, b)

	b, err = gestureBindings(true)
	require.NoError(t, err)
	assert.Equal(t, engine.KeyUp, b["up"])
	assert.Len(t, b, 4)

	b, err = gestureBindings([]any{
		map[string]any{"event": "fire", "key": "ctrl"},
		map[string]any{"event": "jump", "key": "32"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"fire": engine.KeyLeftCtrl, "jump": engine.KeySpace}, b)

	_, err = gestureBindings([]any{map[string]any{"event": "fire", "key": "nope"}})
	assert.Error(t, err)
}

func TestEncodeSound(t *testing.T) {
	out := encodeSound(engine.Sound{Rate: 44100, Samples: []float32{0.5, -1}})
	require.Len(t, out, 5+8)
	assert.Equal(t, TagSound, out[0])
	assert.EqualValues(t, 44100, binary.LittleEndian.Uint32(out[1:]))
}

func TestToolkit_CreateSurfaceReusesRoot(t *testing.T) {
	tk := NewToolkit(bundle.NewResolver())
	a := tk.CreateSurface("main")
	b := tk.CreateSurface("main")
	assert.Same(t, a, b)

	surf, ok := tk.Surface("main")
	require.True(t, ok)
	assert.Equal(t, "main", surf.Root())

	_, ok = tk.Surface("other")
	assert.False(t, ok)
}

func TestSurface_NotifyErrorWithoutClients(t *testing.T) {
	tk := NewToolkit(bundle.NewResolver())
	surf := tk.CreateSurface("main").(*Surface)
	surf.NotifyError(errors.New("boom"))
	surf.ShowLoadingOverlay()
	assert.True(t, surf.OverlayVisible())
	surf.HideLoadingOverlay()
	assert.False(t, surf.OverlayVisible())
}

func (ts *testServer) do(t *testing.T, method, path, contentType, origin, body string) int {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestHandler_RejectsCrossOrigin(t *testing.T) {
	ts := newTestServer(t)
	dir := writeBundle(t, `{}`)
	body := `{"bundle":"` + dir + `"}`

	code := ts.do(t, http.MethodPost, "/api/sessions/main/run", "application/json", "https://evil.example", body)
	assert.Equal(t, http.StatusForbidden, code)
	code = ts.do(t, http.MethodPost, "/api/sessions/main/stop", "", "https://evil.example", "")
	assert.Equal(t, http.StatusForbidden, code)
	code = ts.do(t, http.MethodGet, "/api/sessions/main", "", "https://evil.example", "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Empty(t, ts.instances)

	code = ts.do(t, http.MethodPost, "/api/sessions/main/run", "application/json", ts.srv.URL, body)
	assert.Equal(t, http.StatusOK, code)
}

func TestHandler_RunRequiresJSON(t *testing.T) {
	ts := newTestServer(t)
	dir := writeBundle(t, `{}`)

	code := ts.do(t, http.MethodPost, "/api/sessions/main/run", "text/plain", "", `{"bundle":"`+dir+`"}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, code)
	assert.Empty(t, ts.instances)

	code = ts.do(t, http.MethodPost, "/api/sessions/main/run", "application/json; charset=utf-8", "", `{"bundle":"`+dir+`"}`)
	assert.Equal(t, http.StatusOK, code)
}

func TestHandler_StopClearsGestures(t *testing.T) {
	ts := newTestServer(t)
	dir := writeBundle(t, `{"gestures":true}`)

	code, _ := ts.post(t, "/api/sessions/main/run", runRequest{Bundle: dir})
	require.Equal(t, http.StatusOK, code)
	ci := <-ts.instances
	surf, ok := ts.toolkit.Surface("main")
	require.True(t, ok)

	code, _ = ts.post(t, "/api/sessions/main/stop", nil)
	require.Equal(t, http.StatusOK, code)

	// The frame stream ends asynchronously after Exit.
	require.Eventually(t, func() bool {
		surf.mu.Lock()
		defer surf.mu.Unlock()
		return surf.gestures == nil && surf.keys == nil
	}, 5*time.Second, 10*time.Millisecond)

	surf.handleInput(inputMessage{Type: TypeKey, Code: 13, Pressed: true})
	assert.Empty(t, ci.keys)

	conn := ts.dial(t, "main")
	readControl(t, conn, TypeOverlay)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no gestures are replayed to a late client")
}

type audioInstance struct {
	*fakeInstance
	sound chan engine.Sound
}

func (i *audioInstance) Sound() <-chan engine.Sound {
	return i.sound
}

// attachClient registers a client without a connection and returns its
// queue.
func attachClient(surf *Surface) chan outMessage {
	c := &client{id: "test", send: make(chan outMessage, sendQueue), surface: surf}
	surf.mu.Lock()
	surf.clients[c] = struct{}{}
	surf.mu.Unlock()
	return c.send
}

func nextMessage(t *testing.T, send chan outMessage) outMessage {
	t.Helper()
	select {
	case msg := <-send:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message")
		return outMessage{}
	}
}

func TestToolkit_AudioOfExitedInstance(t *testing.T) {
	tk := NewToolkit(bundle.NewResolver())
	surf := tk.CreateSurface("main").(*Surface)
	send := attachClient(surf)

	ci := &audioInstance{fakeInstance: newFakeInstance(nil), sound: make(chan engine.Sound, 1)}
	ci.frames <- engine.Frame{Width: 1, Height: 1, Rows: 1, Pix: make([]byte, 4)}
	ci.sound <- engine.Sound{Rate: 8000, Samples: []float32{0.5}}
	close(ci.frames)
	close(ci.sound)

	tk.AttachVideo(surf, ci)
	assert.Equal(t, TagFrame, nextMessage(t, send).data[0])
	require.Eventually(t, func() bool {
		surf.mu.Lock()
		defer surf.mu.Unlock()
		return surf.owner == nil
	}, 5*time.Second, 10*time.Millisecond)

	tk.AttachAudio(ci)
	msg := nextMessage(t, send)
	assert.Equal(t, websocket.BinaryMessage, msg.kind)
	assert.Equal(t, TagSound, msg.data[0])

	// Attachments after the stream ended leave the surface idle.
	tk.AttachKeyboard(surf, ci)
	tk.AttachGestureControls(surf, ci, true)
	surf.mu.Lock()
	defer surf.mu.Unlock()
	assert.Nil(t, surf.keys)
	assert.Nil(t, surf.gestures)
	assert.Empty(t, send)
}

func TestSurface_ReleaseIgnoresReplacedInstance(t *testing.T) {
	tk := NewToolkit(bundle.NewResolver())
	surf := tk.CreateSurface("main").(*Surface)

	old := newFakeInstance(nil)
	cur := newFakeInstance(nil)
	surf.bind(old)
	surf.bind(cur)
	tk.AttachKeyboard(surf, cur)

	surf.release(old)
	surf.mu.Lock()
	defer surf.mu.Unlock()
	assert.NotNil(t, surf.keys)
}

func TestEncodeFrame(t *testing.T) {
	out, err := encodeFrame(engine.Frame{Width: 2, Height: 2, Y: 1, Rows: 1, Pix: make([]byte, 8)})
	require.NoError(t, err)
	require.Len(t, out, 9+8)
	assert.Equal(t, TagFrame, out[0])

	_, err = encodeFrame(engine.Frame{Width: 70000, Height: 1, Rows: 1})
	assert.Error(t, err)
	_, err = encodeFrame(engine.Frame{Width: 1, Height: 1, Y: -1, Rows: 1})
	assert.Error(t, err)
}
