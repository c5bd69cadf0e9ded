package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultGoogleEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// GoogleEngine recognizes text through the Cloud Vision REST API.
type GoogleEngine struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	languages  []string
}

type annotateRequest struct {
	Requests []annotateImageRequest `json:"requests"`
}

type annotateImageRequest struct {
	Image        annotateImage     `json:"image"`
	Features     []annotateFeature `json:"features"`
	ImageContext *imageContext     `json:"imageContext,omitempty"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type string `json:"type"`
}

type imageContext struct {
	LanguageHints []string `json:"languageHints,omitempty"`
}

type annotateResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// NewGoogleEngine creates a Cloud Vision client
func NewGoogleEngine(cfg GoogleConfig, languages []string) *GoogleEngine {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultGoogleEndpoint
	}
	return &GoogleEngine{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		endpoint:  endpoint,
		apiKey:    cfg.APIKey,
		languages: languages,
	}
}

func (e *GoogleEngine) Name() string { return "google-vision" }

// Recognize submits one page for document text detection and returns
// the full text annotation. A page with no detectable text yields an
// empty string, not an error.
func (e *GoogleEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	reqBody := annotateRequest{
		Requests: []annotateImageRequest{{
			Image:    annotateImage{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []annotateFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
		}},
	}
	if len(e.languages) > 0 {
		reqBody.Requests[0].ImageContext = &imageContext{LanguageHints: e.languages}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"?key="+url.QueryEscape(e.apiKey), bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var annotateResp annotateResponse
	if err := json.Unmarshal(respBody, &annotateResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(annotateResp.Responses) == 0 {
		return "", fmt.Errorf("no responses in annotate reply")
	}

	page := annotateResp.Responses[0]
	if page.Error != nil {
		return "", fmt.Errorf("vision API error: %s", page.Error.Message)
	}
	if page.FullTextAnnotation == nil {
		return "", nil
	}
	return page.FullTextAnnotation.Text, nil
}
