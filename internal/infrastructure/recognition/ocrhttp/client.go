package ocrhttp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

const recognizePath = "/v1/recognize"

// Client calls an HTTP recognition engine that accepts base64 images and
// returns a document type guess plus a field map.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds a client. executor may be nil to call the engine directly.
func New(baseURL string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type recognizeRequest struct {
	Image    string                  `json:"image"`
	MimeType string                  `json:"mime_type"`
	Hints    domain.RecognitionHints `json:"hints"`
}

type recognizeResponse struct {
	DocumentType string         `json:"document_type"`
	DocType      string         `json:"docType"`
	Fields       map[string]any `json:"fields"`
	Data         map[string]any `json:"data"`
}

func (c *Client) Recognize(
	ctx context.Context,
	image []byte,
	mimeType string,
	hints domain.RecognitionHints,
) (*domain.RecognitionResult, error) {
	if len(image) == 0 {
		return nil, domain.WrapError(domain.ErrRecognitionFailed, "recognize", fmt.Errorf("empty image"))
	}
	request := recognizeRequest{
		Image:    base64.StdEncoding.EncodeToString(image),
		MimeType: mimeType,
		Hints:    hints,
	}

	call := func(ctx context.Context) (recognizeResponse, error) {
		var response recognizeResponse
		err := c.postJSON(ctx, recognizePath, request, &response)
		return response, err
	}

	var (
		response recognizeResponse
		err      error
	)
	if c.executor != nil {
		response, err = resilience.Do(ctx, c.executor, recognizeOperation, call, classifyRecognitionError)
	} else {
		response, err = call(ctx)
	}
	if err != nil {
		return nil, recognitionError(err)
	}

	result := &domain.RecognitionResult{
		DocumentTypeGuess: firstNonEmpty(response.DocumentType, response.DocType),
		Fields:            response.Fields,
	}
	if result.Fields == nil {
		result.Fields = response.Data
	}
	return result, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
