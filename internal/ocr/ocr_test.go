package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/guias-cli/internal/config"
	"github.com/sells-group/guias-cli/internal/resilience"
)

func TestNewExtractor_Local(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "local", PdfToTextPath: "/usr/bin/pdftotext"})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)
}

func TestNewExtractor_LocalDefault(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)
}

func TestNewExtractor_MistralMissingKey(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "mistral"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral provider requires mistral_api_key")
}

func TestNewExtractor_MistralWithKey(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "mistral", MistralKey: "test-key", TimeoutSecs: 30})
	require.NoError(t, err)
	require.IsType(t, &MistralOCR{}, ext)
	assert.Equal(t, 30*time.Second, ext.(*MistralOCR).client.Timeout)
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "tesseract"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "tesseract"`)
}

func TestPdfToText_Args(t *testing.T) {
	p := NewPdfToText("", false, 0)
	assert.Equal(t, "pdftotext", p.binPath)
	assert.Equal(t, []string{"-f", "1", "-l", "1", "-enc", "UTF-8", "/in/a.pdf", "-"}, p.args("/in/a.pdf"))

	p = NewPdfToText("/custom/pdftotext", true, 0)
	assert.Equal(t, "/custom/pdftotext", p.binPath)
	assert.Contains(t, p.args("/in/a.pdf"), "-layout")
}

func TestPdfToText_ExtractText_BinaryNotFound(t *testing.T) {
	p := NewPdfToText("/nonexistent/pdftotext", false, 0)
	_, err := p.ExtractText(context.Background(), "/tmp/test.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestPdfToText_ExtractText_Success(t *testing.T) {
	tmpDir := t.TempDir()
	fakeBin := filepath.Join(tmpDir, "pdftotext")
	script := "#!/bin/sh\necho 'Documento de Arrecadação'\necho \"$@\"\n"
	require.NoError(t, os.WriteFile(fakeBin, []byte(script), 0o755))

	p := NewPdfToText(fakeBin, false, time.Minute)
	text, err := p.ExtractText(context.Background(), "/tmp/dummy.pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "Documento de Arrecadação")
	assert.Contains(t, text, "-f 1 -l 1")
}

func TestPdfToText_ExtractText_Timeout(t *testing.T) {
	tmpDir := t.TempDir()
	fakeBin := filepath.Join(tmpDir, "pdftotext")
	require.NoError(t, os.WriteFile(fakeBin, []byte("#!/bin/sh\nexec sleep 5\n"), 0o755))

	p := NewPdfToText(fakeBin, false, 50*time.Millisecond)
	_, err := p.ExtractText(context.Background(), "/tmp/dummy.pdf")
	require.Error(t, err)
}

func newMistralTestServer(t *testing.T, handler http.HandlerFunc) *MistralOCR {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &MistralOCR{
		apiKey:   "test-key",
		model:    "test-model",
		endpoint: srv.URL,
		client:   &http.Client{},
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
}

func writePDF(t *testing.T) string {
	t.Helper()
	pdfPath := filepath.Join(t.TempDir(), "guia.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4 test content"), 0o644))
	return pdfPath
}

func TestMistralOCR_DefaultModel(t *testing.T) {
	m := NewMistralOCR("key", "", 0, 0)
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, mistralOCREndpoint, m.endpoint)
	assert.Equal(t, rate.Limit(defaultMistralRPS), m.limiter.Limit())
}

func TestNewExtractor_MistralRateLimit(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "mistral", MistralKey: "test-key", RatePerSec: 5})
	require.NoError(t, err)
	m := ext.(*MistralOCR)
	assert.Equal(t, rate.Limit(5), m.limiter.Limit())
	assert.Equal(t, 5, m.limiter.Burst())
}

func TestMistralOCR_ExtractFirstPage(t *testing.T) {
	m := newMistralTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, []int{0}, req.Pages)
		assert.Contains(t, req.Document.DocumentURL, "data:application/pdf;base64,")

		resp := mistralOCRResponse{
			Pages: []mistralOCRPage{
				{Index: 1, Markdown: "second page"},
				{Index: 0, Markdown: "Documento de Arrecadação do eSocial"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	})

	text, err := m.ExtractText(context.Background(), writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "Documento de Arrecadação do eSocial", text)
}

func TestMistralOCR_APIError(t *testing.T) {
	m := newMistralTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`)) //nolint:errcheck
	})

	_, err := m.ExtractText(context.Background(), writePDF(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral API returned 401")
	assert.False(t, resilience.IsTransient(err))
}

func TestMistralOCR_TooManyRequestsIsTransient(t *testing.T) {
	var calls atomic.Int32
	m := newMistralTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mistralOCRResponse{ //nolint:errcheck
			Pages: []mistralOCRPage{{Index: 0, Markdown: "Documento de Arrecadação de Receitas Federais"}},
		})
	})
	pdf := writePDF(t)

	_, err := m.ExtractText(context.Background(), pdf)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	var te *resilience.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)

	cfg := resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	text, err := resilience.DoVal(context.Background(), cfg, func(ctx context.Context) (string, error) {
		return m.ExtractText(ctx, pdf)
	})
	require.NoError(t, err)
	assert.Contains(t, text, "Receitas Federais")
	assert.Equal(t, int32(2), calls.Load())
}

func TestMistralOCR_ServerErrorIsTransient(t *testing.T) {
	m := newMistralTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := m.ExtractText(context.Background(), writePDF(t))
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestMistralOCR_RateLimiterHonorsContext(t *testing.T) {
	m := newMistralTestServer(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("request should not be sent")
	})
	m.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	m.limiter.Allow() // drain the only token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.ExtractText(ctx, writePDF(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestMistralOCR_FileNotFound(t *testing.T) {
	m := NewMistralOCR("key", "model", 0, 0)
	_, err := m.ExtractText(context.Background(), "/nonexistent/file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PDF")
}

func TestMistralOCR_MalformedResponse(t *testing.T) {
	m := newMistralTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{invalid json`)) //nolint:errcheck
	})

	_, err := m.ExtractText(context.Background(), writePDF(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal mistral response")
}

func TestMistralOCR_EmptyPages(t *testing.T) {
	m := newMistralTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mistralOCRResponse{}) //nolint:errcheck
	})

	text, err := m.ExtractText(context.Background(), writePDF(t))
	require.NoError(t, err)
	assert.Empty(t, text)
}
