package api

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/dnasonify-go"
	"github.com/cbegin/dnasonify-go/internal/transport"
	"github.com/cbegin/dnasonify-go/internal/waveform"
)

func setupRouter(t *testing.T) (*gin.Engine, *Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := dnasonify.DefaultConfig()
	cfg.SampleRate = 8000
	reg := NewRegistry(cfg, 4)
	t.Cleanup(reg.Close)
	r := gin.New()
	Register(r, reg)
	return r, reg
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	r.ServeHTTP(w, req)
	return w
}

func create(t *testing.T, r *gin.Engine, body string) SessionResponse {
	t.Helper()
	w := do(r, "POST", "/sessions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) transport.State {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var st transport.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func TestCreateSession(t *testing.T) {
	r, reg := setupRouter(t)
	resp := create(t, r, `{"sequence": "ATGC", "label": "demo"}`)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "demo", resp.Label)
	assert.Equal(t, 4, resp.Length)
	assert.Equal(t, 2.0, resp.State.Duration)
	assert.Equal(t, "Frequency Mapping", resp.Attributes.Method)
	assert.Equal(t, 1, reg.Len())
}

func TestCreateSessionFromFASTA(t *testing.T) {
	r, _ := setupRouter(t)
	resp := create(t, r, `{"fasta": ">chr1 test\nACGT\nACGT\n", "config": {"method": "chromatic", "tempoBPM": 60}}`)
	assert.Equal(t, "test", resp.Label)
	assert.Equal(t, 8, resp.Length)
	assert.Equal(t, 8.0, resp.State.Duration)
	assert.Equal(t, "Chromatic Scale", resp.Attributes.Method)
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	r, reg := setupRouter(t)

	w := do(r, "POST", "/sessions", `{"sequence": "ATXG"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Position)
	assert.Equal(t, 2, *resp.Position)
	assert.Equal(t, 0, reg.Len(), "failed load must not leak a session")

	w = do(r, "POST", "/sessions", `{"sequence": "ATGC", "fasta": ">x\nA"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, "POST", "/sessions", `{"sequence": "ATGC", "config": {"volume": 3}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, "POST", "/sessions", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistryLimit(t *testing.T) {
	r, _ := setupRouter(t)
	for i := 0; i < 4; i++ {
		create(t, r, `{"sequence": "A"}`)
	}
	w := do(r, "POST", "/sessions", `{"sequence": "A"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUnknownSession(t *testing.T) {
	r, _ := setupRouter(t)
	assert.Equal(t, http.StatusNotFound, do(r, "GET", "/sessions/nope/state", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, "POST", "/sessions/nope/play", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, "DELETE", "/sessions/nope", "").Code)
}

func TestTransportRoutes(t *testing.T) {
	r, _ := setupRouter(t)
	id := create(t, r, `{"sequence": "ATGC"}`).ID
	base := "/sessions/" + id

	st := decodeState(t, do(r, "POST", base+"/play", ""))
	assert.Equal(t, transport.Playing, st.Status)

	st = decodeState(t, do(r, "POST", base+"/tick", `{"elapsedMs": 1000}`))
	assert.Equal(t, 1.0, st.Position)

	st = decodeState(t, do(r, "POST", base+"/pause", ""))
	assert.Equal(t, transport.Paused, st.Status)

	st = decodeState(t, do(r, "POST", base+"/seek", `{"position": 99}`))
	assert.Equal(t, 2.0, st.Position)
	assert.Equal(t, transport.Paused, st.Status)

	decodeState(t, do(r, "POST", base+"/play", ""))
	st = decodeState(t, do(r, "POST", base+"/tick", `{"elapsedMs": 100}`))
	assert.Equal(t, transport.Finished, st.Status)

	st = decodeState(t, do(r, "POST", base+"/reset", ""))
	assert.Equal(t, transport.Idle, st.Status)
	assert.Equal(t, 0.0, st.Position)

	assert.Equal(t, http.StatusBadRequest, do(r, "POST", base+"/seek", `{}`).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "DELETE", base, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, "GET", base+"/state", "").Code)
}

func TestMethodRouteResets(t *testing.T) {
	r, _ := setupRouter(t)
	id := create(t, r, `{"sequence": "ATGCATGC"}`).ID
	base := "/sessions/" + id
	do(r, "POST", base+"/play", "")
	do(r, "POST", base+"/tick", `{"elapsedMs": 500}`)

	w := do(r, "POST", base+"/method", `{"method": "harmonic"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Harmonic Series", resp.Attributes.Method)
	assert.Equal(t, 0.0, resp.State.Position)

	assert.Equal(t, http.StatusBadRequest, do(r, "POST", base+"/method", `{"method": "jazz"}`).Code)
}

func TestStatsAndFrame(t *testing.T) {
	r, _ := setupRouter(t)
	id := create(t, r, `{"sequence": "AATTGGCC"}`).ID
	base := "/sessions/" + id

	w := do(r, "GET", base+"/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Stats struct {
			Frequency map[string]float64 `json:"frequency"`
			GCContent float64            `json:"gcContent"`
		} `json:"stats"`
		Attributes dnasonify.MusicalAttributes `json:"attributes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0.5, stats.Stats.GCContent)
	assert.Equal(t, 0.25, stats.Stats.Frequency["A"])
	assert.Equal(t, "C Major", stats.Attributes.Key)

	w = do(r, "GET", base+"/frame?width=16", "")
	require.Equal(t, http.StatusOK, w.Code)
	var f waveform.Frame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Len(t, f.Bars, 16)
	assert.Equal(t, 4.0, f.End)

	assert.Equal(t, http.StatusBadRequest, do(r, "GET", base+"/frame?width=zero", "").Code)
}

func TestNotesRoute(t *testing.T) {
	r, _ := setupRouter(t)
	id := create(t, r, `{"sequence": "ATGC"}`).ID

	w := do(r, "GET", "/sessions/"+id+"/notes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	var list struct {
		Notes []struct {
			Offset float64 `json:"offset"`
			Pitch  float64 `json:"pitch"`
		} `json:"notes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Notes, 4)
	assert.Equal(t, 1760.0, list.Notes[3].Pitch)
	assert.Equal(t, 1.5, list.Notes[3].Offset)

	w = do(r, "GET", "/sessions/"+id+"/notes?format=yaml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pitch: 1760")

	assert.Equal(t, http.StatusBadRequest, do(r, "GET", "/sessions/"+id+"/notes?format=xml", "").Code)
}

func TestExportRoutes(t *testing.T) {
	r, _ := setupRouter(t)
	id := create(t, r, `{"sequence": "ATGC"}`).ID

	w := do(r, "GET", "/sessions/"+id+"/export.wav?format=pcm16", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	body := w.Body.Bytes()
	require.Len(t, body, 44+2*16000)
	assert.Equal(t, uint32(8000), binary.LittleEndian.Uint32(body[24:]))

	assert.Equal(t, http.StatusBadRequest, do(r, "GET", "/sessions/"+id+"/export.wav?format=mp3", "").Code)

	w = do(r, "GET", "/sessions/"+id+"/export.mid", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/midi", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("MThd")))
}

func TestSheetMusicRoute(t *testing.T) {
	r, _ := setupRouter(t)
	id := create(t, r, `{"sequence": "ATGC", "label": "demo"}`).ID

	w := do(r, "GET", "/sessions/"+id+"/export.abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/vnd.abc")
	assert.Contains(t, w.Body.String(), "T:demo\n")
	assert.Contains(t, w.Body.String(), "A,4 A4 a4 a'4 |]")

	assert.Equal(t, http.StatusNotFound, do(r, "GET", "/sessions/nope/export.abc", "").Code)
}
