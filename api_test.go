package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elijahnyp/casa_inteligente/gesture"
	"github.com/elijahnyp/casa_inteligente/publisher"
	"github.com/elijahnyp/casa_inteligente/state"
	"github.com/elijahnyp/casa_inteligente/wire"
)

type apiFixture struct {
	handler  http.Handler
	pub      *fakePublisher
	sessions *SessionStore
}

func newAPIFixture(shared bool, v state.Validation, classifier gesture.Classifier) *apiFixture {
	pub := &fakePublisher{}
	sessions := NewSessionStore(shared, v, 0)
	ctl := NewController(pub, nil, classifier)
	return &apiFixture{handler: NewAPI(ctl, sessions, v), pub: pub, sessions: sessions}
}

func (f *apiFixture) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func sessionCookieFrom(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("response did not set a session cookie")
	return nil
}

func TestAPIPutAttribute(t *testing.T) {
	f := newAPIFixture(false, state.Clamp, nil)

	w := f.do(t, http.MethodPut, "/api/rooms/sala/fan", `{"value": 9}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200: %s", w.Code, w.Body.String())
	}
	var s state.DeviceState
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if s.FanSpeed != 3 {
		t.Errorf("FanSpeed = %d, expected clamped 3", s.FanSpeed)
	}
	if len(f.pub.published()) != 1 {
		t.Errorf("expected one publish, got %d", len(f.pub.published()))
	}
}

func TestAPIPutAttributeErrors(t *testing.T) {
	tests := []struct {
		name       string
		validation state.Validation
		path       string
		body       string
		expected   int
	}{
		{"unknown room", state.Clamp, "/api/rooms/cocina/light", `{"value": true}`, http.StatusNotFound},
		{"unknown attribute", state.Clamp, "/api/rooms/sala/colour", `{"value": 1}`, http.StatusNotFound},
		{"wrong type", state.Clamp, "/api/rooms/sala/light", `{"value": 3}`, http.StatusBadRequest},
		{"missing value", state.Clamp, "/api/rooms/sala/brightness", `{}`, http.StatusBadRequest},
		{"strict out of range", state.Strict, "/api/rooms/sala/brightness", `{"value": 101}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(false, tt.validation, nil)
			w := f.do(t, http.MethodPut, tt.path, tt.body)
			if w.Code != tt.expected {
				t.Errorf("status = %d, expected %d: %s", w.Code, tt.expected, w.Body.String())
			}
			if len(f.pub.published()) != 0 {
				t.Error("rejected request should not publish")
			}
		})
	}
}

func TestAPICommand(t *testing.T) {
	f := newAPIFixture(false, state.Clamp, nil)

	w := f.do(t, http.MethodPost, "/api/command", `{"command": "abrir puerta del cuarto"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200: %s", w.Code, w.Body.String())
	}
	var res commandResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if res.Room != state.Habitacion || !res.Changed {
		t.Errorf("response %+v, expected a change in habitacion", res)
	}

	w = f.do(t, http.MethodPost, "/api/command", `{"command": "   "}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty command status = %d, expected 422", w.Code)
	}
	w = f.do(t, http.MethodPost, "/api/command", `{"command": "encender luz"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("roomless command status = %d, expected 422", w.Code)
	}
	if !strings.Contains(w.Body.String(), "no room specified") {
		t.Errorf("diagnostic missing from %s", w.Body.String())
	}
}

func TestAPISessionsAreIsolated(t *testing.T) {
	f := newAPIFixture(false, state.Clamp, nil)

	w := f.do(t, http.MethodPost, "/api/command", `{"command": "encender luz sala"}`)
	alice := sessionCookieFrom(t, w)

	w = f.do(t, http.MethodGet, "/api/rooms/sala", "", alice)
	var s state.DeviceState
	_ = json.Unmarshal(w.Body.Bytes(), &s)
	if !s.LightOn {
		t.Error("same session should see its own change")
	}

	w = f.do(t, http.MethodGet, "/api/rooms/sala", "")
	s = state.DeviceState{}
	_ = json.Unmarshal(w.Body.Bytes(), &s)
	if s.LightOn {
		t.Error("a new session should start from defaults")
	}
	if f.sessions.Len() != 1 {
		t.Errorf("expected 1 session, got %d", f.sessions.Len())
	}
}

func TestAPIReadsDoNotStartSessions(t *testing.T) {
	f := newAPIFixture(false, state.Clamp, nil)
	for i := 0; i < 5; i++ {
		w := f.do(t, http.MethodGet, "/api/status", "")
		if len(w.Result().Cookies()) != 0 {
			t.Fatal("a read should not set a session cookie")
		}
		f.do(t, http.MethodGet, "/api/rooms", "")
	}
	if f.sessions.Len() != 0 {
		t.Errorf("expected no sessions, got %d", f.sessions.Len())
	}
}

func TestAPISharedState(t *testing.T) {
	f := newAPIFixture(true, state.Clamp, nil)

	f.do(t, http.MethodPost, "/api/command", `{"command": "cerrar puerta sala y subir ventilador sala"}`)
	w := f.do(t, http.MethodGet, "/api/rooms", "")
	var snap map[state.Room]state.DeviceState
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if snap[state.Sala].FanSpeed != 2 {
		t.Errorf("shared home fan = %d, expected 2", snap[state.Sala].FanSpeed)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("shared mode should not issue session cookies")
	}
}

func TestAPIGesture(t *testing.T) {
	f := newAPIFixture(false, state.Clamp, fakeClassifier{result: gesture.Classification{Label: gesture.LuzOn, Confidence: 0.4}})

	req := httptest.NewRequest(http.MethodPost, "/api/gesture", bytes.NewReader(testJPEG(t)))
	req.Header.Set("Content-Type", "image/jpeg")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200: %s", w.Code, w.Body.String())
	}
	var out GestureOutcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out.Label != gesture.LuzOn || out.Room != state.Sala || !out.State.LightOn {
		t.Errorf("outcome %+v", out)
	}

	w = f.do(t, http.MethodGet, "/api/gesture/frame", "", sessionCookieFrom(t, w))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("frame status = %d type = %s", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestAPIGestureFrameIsPerSession(t *testing.T) {
	f := newAPIFixture(false, state.Clamp, fakeClassifier{result: gesture.Classification{Label: gesture.LuzOff, Confidence: 0.7}})

	req := httptest.NewRequest(http.MethodPost, "/api/gesture", bytes.NewReader(testJPEG(t)))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200: %s", w.Code, w.Body.String())
	}
	alice := sessionCookieFrom(t, w)

	w = f.do(t, http.MethodPost, "/api/command", `{"command": "encender luz cuarto"}`)
	bob := sessionCookieFrom(t, w)

	tests := []struct {
		name     string
		cookies  []*http.Cookie
		expected int
	}{
		{"owner", []*http.Cookie{alice}, http.StatusOK},
		{"other session", []*http.Cookie{bob}, http.StatusNotFound},
		{"no session", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/gesture/frame", "", tt.cookies...)
			if w.Code != tt.expected {
				t.Errorf("status = %d, expected %d", w.Code, tt.expected)
			}
		})
	}
}

func TestAPIGestureErrors(t *testing.T) {
	f := newAPIFixture(false, state.Clamp, nil)
	w := f.do(t, http.MethodPost, "/api/gesture", "not a jpeg")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled gestures status = %d, expected 503", w.Code)
	}
	w = f.do(t, http.MethodGet, "/api/gesture/frame", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing frame status = %d, expected 404", w.Code)
	}

	f = newAPIFixture(false, state.Clamp, fakeClassifier{err: gesture.ErrNoGesture})
	w = f.do(t, http.MethodPost, "/api/gesture", "frame")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("no gesture status = %d, expected 422", w.Code)
	}
}

func TestAPIPeer(t *testing.T) {
	f := newAPIFixture(false, state.Clamp, nil)

	w := f.do(t, http.MethodPost, "/api/peer", `{"Act1":"ON","Analog":50}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, expected 202: %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPost, "/api/peer", `{"Act1":"OFF"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, expected 202", w.Code)
	}

	if len(f.pub.peer) != 2 {
		t.Fatalf("expected 2 peer commands, got %d", len(f.pub.peer))
	}
	if f.pub.peer[0].Analog != 50 {
		t.Errorf("Analog = %v, expected 50", f.pub.peer[0].Analog)
	}
	if _, ok := f.pub.peer[1].DoorAngle(); ok {
		t.Error("omitted Analog should not move the door")
	}
	if f.pub.peer[1].Analog != wire.NoDoorMove {
		t.Errorf("Analog = %v, expected NoDoorMove", f.pub.peer[1].Analog)
	}
	if len(f.pub.published()) != 0 {
		t.Error("peer commands must not publish telemetry")
	}

	f.pub.err = publisher.ErrQueueFull
	w = f.do(t, http.MethodPost, "/api/peer", `{"Act1":"ON"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("full queue status = %d, expected 503", w.Code)
	}
}

func TestAPIStatus(t *testing.T) {
	f := newAPIFixture(true, state.Strict, nil)
	w := f.do(t, http.MethodGet, "/api/status", "")
	var st statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if st.GesturesEnabled || !st.SharedState || st.Validation != state.Strict.String() {
		t.Errorf("status %+v", st)
	}
	if st.LastPeer != nil {
		t.Error("no peer command has been seen yet")
	}
}

func TestAPIStatusLastPeer(t *testing.T) {
	pub := &fakePublisher{}
	sessions := NewSessionStore(true, state.Clamp, 0)
	ctl := NewController(pub, nil, nil)
	handler := NewAPI(ctl, sessions, state.Clamp)

	ctl.ObservePeer([]byte(`{"Act1":"OFF","Analog":"20"}`))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var st statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if st.LastPeer == nil || st.LastPeer.Command.Act1 != "OFF" || st.LastPeer.Command.Analog != 20 {
		t.Errorf("last peer = %+v", st.LastPeer)
	}
}
