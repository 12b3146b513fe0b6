package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/componentforge/forge/pkg/config"
	"github.com/componentforge/forge/pkg/events"
	"github.com/componentforge/forge/pkg/figma"
	"github.com/componentforge/forge/pkg/generator"
	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/models"
	"github.com/componentforge/forge/pkg/patterns"
	"github.com/componentforge/forge/pkg/pipeline"
	"github.com/componentforge/forge/pkg/quality"
	"github.com/componentforge/forge/pkg/queue"
	"github.com/componentforge/forge/pkg/requirements"
	"github.com/componentforge/forge/pkg/retrieval"
	"github.com/componentforge/forge/pkg/tokens"
)

const cleanComponent = `import * as React from "react";

export function Button() {
  return <button aria-label="Go" style={{ background: "var(--color-primary)" }}>Go</button>;
}`

type apiHarness struct {
	server       *Server
	broker       *events.Broker
	pool         *queue.WorkerPool
	extractorLLM *llm.ScriptedClient
	generatorLLM *llm.ScriptedClient
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	reg, err := patterns.LoadBuiltin()
	require.NoError(t, err)
	index, err := retrieval.NewBM25Index(reg.All())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	extractorLLM := llm.NewScriptedClient()
	proposerLLM := llm.NewScriptedClient()
	generatorLLM := llm.NewScriptedClient()
	retrieverLLM := llm.NewScriptedClient()

	store, err := retrieval.BuildVectorStore(context.Background(), retrieverLLM, reg.All())
	require.NoError(t, err)

	broker := events.NewBroker()
	extractor := tokens.NewExtractor(extractorLLM, figma.NewClient(time.Minute))
	proposer := requirements.NewProposer(proposerLLM)
	retriever := retrieval.NewRetriever(reg, index, store, retrieverLLM, retrieval.Options{})

	deps := pipeline.Dependencies{
		Extractor:  extractor,
		Proposer:   proposer,
		Retriever:  retriever,
		Generator:  generator.NewGenerator(generatorLLM, patterns.NewGallery(reg), nil, generator.Options{}),
		Aggregator: quality.NewAggregator(),
		Registry:   reg,
		Progress:   broker,
	}
	orchestrator := pipeline.NewOrchestrator(deps, pipeline.StageTimeouts{}, "test", 4)

	pool := queue.NewWorkerPool(orchestrator)
	pool.Start(context.Background(), 2)
	t.Cleanup(pool.Stop)

	cfg := &config.Config{HTTPAddr: ":0"}
	server := NewServer(cfg, orchestrator, pool, extractor, proposer, retriever, reg, broker)
	return &apiHarness{server: server, broker: broker, pool: pool, extractorLLM: extractorLLM, generatorLLM: generatorLLM}
}

func (h *apiHarness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.server.Echo().ServeHTTP(rec, req)
	return rec
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 100, 100))))
	return buf.Bytes()
}

func multipartImage(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="shot.png"`, field))
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.GreaterOrEqual(t, resp.Patterns, 10)
}

func TestListPatterns(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/patterns", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []PatternSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.GreaterOrEqual(t, len(resp), 10)
}

func TestExtractScreenshot(t *testing.T) {
	h := newAPIHarness(t)
	visionJSON := `{"colors": {"primary": "#3B82F6"}, "typography": {"fontFamily": "Inter", "fontSize": {}, "fontWeight": {}, "lineHeight": {}}, "spacing": {}, "borderRadius": {}}`
	var probs []llm.TokenLogProb
	for _, r := range visionJSON {
		probs = append(probs, llm.TokenLogProb{Token: string(r), LogProb: -0.01})
	}
	h.extractorLLM.AddSequential(llm.ScriptEntry{Content: visionJSON, LogProbs: probs})

	body, contentType := multipartImage(t, "file", testPNG(t))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/extract/screenshot", body)
	req.Header.Set("Content-Type", contentType)
	rec := h.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ExtractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "#3B82F6", resp.Tokens.Colors["primary"].Value)
}

func TestExtractScreenshot_MissingFile(t *testing.T) {
	h := newAPIHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/extract/screenshot", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := h.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "InvalidInput", envelope.Code)
}

func TestExtractScreenshot_RejectsCorruptImage(t *testing.T) {
	h := newAPIHarness(t)
	body, contentType := multipartImage(t, "file", []byte("junk"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/extract/screenshot", body)
	req.Header.Set("Content-Type", contentType)
	rec := h.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "InvalidInput", envelope.Code)
}

func TestExtractFigma_Validation(t *testing.T) {
	h := newAPIHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/extract/figma", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := h.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "figma_url")
}

func TestGenerate_Direct(t *testing.T) {
	h := newAPIHarness(t)
	output, err := json.Marshal(map[string]string{"component": cleanComponent, "stories": "export default {};"})
	require.NoError(t, err)
	h.generatorLLM.AddSequential(llm.ScriptEntry{Content: string(output)})

	body := map[string]any{
		"pattern_id": "shadcn-button",
		"tokens": models.DesignTokens{
			Colors: map[string]models.TokenValue{"primary": {Value: "#3B82F6", Confidence: 1}},
		},
		"requirements": models.RequirementSet{
			Classification: models.ComponentClassification{ComponentType: "Button", Confidence: 0.9},
			Proposals:      []models.RequirementProposal{
				{Category: models.CategoryProps, Name: "variant", Status: models.ProposalApproved},
			},
		},
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := h.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var code models.GeneratedCode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &code))
	assert.Contains(t, code.Component, "pattern_id: shadcn-button")
	assert.Equal(t, models.RunCompleted, code.Status)
}

func TestGenerate_UnknownPattern(t *testing.T) {
	h := newAPIHarness(t)
	payload := `{"pattern_id": "nope", "tokens": {"colors": {}, "typography": {"fontFamily": {"value": ""}, "fontSize": {}, "fontWeight": {}, "lineHeight": {}}, "spacing": {}, "borderRadius": {}}, "requirements": {"classification": {"component_type": "Button"}, "proposals": []}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := h.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRun_RequiresSource(t *testing.T) {
	h := newAPIHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := h.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunEvents_SSEStream(t *testing.T) {
	h := newAPIHarness(t)

	// Seed a finished run's history; the SSE handler replays it.
	h.broker.Publish(pipeline.ProgressEvent{RunID: "run-sse", Event: "progress", Progress: 0, Message: "run started"})
	h.broker.Publish(pipeline.ProgressEvent{RunID: "run-sse", Event: "progress", Progress: 100, Message: "run complete"})
	h.broker.Publish(pipeline.ProgressEvent{RunID: "run-sse", Event: "complete", Progress: 100})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-sse/events", nil)
	rec := h.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	progressIdx := strings.Index(body, "event: progress")
	completeIdx := strings.Index(body, "event: complete")
	require.GreaterOrEqual(t, progressIdx, 0)
	require.Greater(t, completeIdx, progressIdx, "progress events precede the terminal event")
	assert.Equal(t, 1, strings.Count(body, "event: complete"), "exactly one terminal event")
}

func TestCancelRun_NotActive(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/v1/runs/ghost/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetRun_NotFound(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
