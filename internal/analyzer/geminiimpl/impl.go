package geminiimpl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/analyzer"
	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/storage"
	"github.com/ousepachn/insta-media-sync/pkg/config"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"github.com/ousepachn/insta-media-sync/pkg/pacer"
	"github.com/ousepachn/insta-media-sync/pkg/retry"
	"go.uber.org/fx"
)

const embeddingModel = "text-embedding-004"

type Opts struct {
	fx.In

	Config  *config.Config
	Logger  logger.Logger
	Storage storage.ObjectStore
}

// Gemini talks to the generative-language REST API. Media bytes are read
// from object storage and sent inline; one request per prompt, mirroring
// how a human reviewer would ask one question at a time.
type Gemini struct {
	http      *http.Client
	endpoint  string
	model     string
	apiKey    string
	storage   storage.ObjectStore
	callPacer pacer.Pacer
	logger    logger.Logger
}

var (
	_ analyzer.Client   = (*Gemini)(nil)
	_ analyzer.Embedder = (*Gemini)(nil)
)

func New(opts Opts) *Gemini {
	return &Gemini{
		http:      &http.Client{Timeout: 120 * time.Second},
		endpoint:  strings.TrimRight(opts.Config.Analyzer.Endpoint, "/"),
		model:     opts.Config.Analyzer.Model,
		apiKey:    opts.Config.Analyzer.APIKey,
		storage:   opts.Storage,
		callPacer: pacer.NewFixedInterval(opts.Config.Analyzer.CallDelay),
		logger:    opts.Logger.WithComponent("Analyzer"),
	}
}

func (g *Gemini) AnalyzeImage(ctx context.Context, objectPath string, caption string) (domain.Findings, error) {
	data, err := g.storage.GetBytes(ctx, objectPath)
	if err != nil {
		return domain.Findings{}, fmt.Errorf("failed to read image %s: %w", objectPath, err)
	}
	mime := mimeForPath(objectPath)

	prompts := []struct {
		text string
		dst  func(f *domain.Findings, answer string)
	}{
		{
			"Describe this image in detail. Include any objects, people, text, or notable elements you can see.",
			func(f *domain.Findings, a string) { f.Description = a },
		},
		{
			"What is the overall mood or style of this image?",
			func(f *domain.Findings, a string) { f.Style = a },
		},
		{
			"Is there any text visible in this image? If so, what does it say?",
			func(f *domain.Findings, a string) { f.Text = a },
		},
		{
			"Are there any concerning or sensitive elements in this image that should be noted?",
			func(f *domain.Findings, a string) { f.Safety = a },
		},
	}

	var findings domain.Findings
	for _, p := range prompts {
		prompt := p.text
		if caption != "" {
			prompt = fmt.Sprintf("The post caption is: %q\n\n%s", caption, p.text)
		}
		answer, err := g.generate(ctx, data, mime, prompt)
		if err != nil {
			return domain.Findings{}, err
		}
		p.dst(&findings, answer)
	}

	if findings.Description == "" {
		return domain.Findings{}, analyzer.ErrEmptyAnalysis
	}
	return findings, nil
}

func (g *Gemini) AnalyzeVideo(ctx context.Context, objectPath string) (domain.Findings, error) {
	data, err := g.storage.GetBytes(ctx, objectPath)
	if err != nil {
		return domain.Findings{}, fmt.Errorf("failed to read video %s: %w", objectPath, err)
	}

	answer, err := g.generate(ctx, data, "video/mp4",
		"Describe this video in detail: the scenes, any spoken or written content, and notable elements.")
	if err != nil {
		return domain.Findings{}, err
	}
	if answer == "" {
		return domain.Findings{}, analyzer.ErrEmptyAnalysis
	}
	return domain.Findings{Description: answer}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) generate(ctx context.Context, media []byte, mime, prompt string) (string, error) {
	if err := g.callPacer.Wait(ctx); err != nil {
		return "", err
	}

	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(media)}},
				{Text: prompt},
			},
		}},
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.endpoint, g.model, g.apiKey)

	var answer string
	operation := func() error {
		body, err := g.post(ctx, endpoint, reqBody)
		if err != nil {
			return err
		}

		var resp generateResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
			return retry.Permanent(analyzer.ErrEmptyAnalysis)
		}
		answer = strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
		return nil
	}

	if err := retry.Do(ctx, g.logger, "GenerateContent", operation, retry.DefaultConfig()); err != nil {
		return "", err
	}
	return answer, nil
}

type embedRequest struct {
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := g.callPacer.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent?key=%s", g.endpoint, embeddingModel, g.apiKey)
	reqBody := embedRequest{Content: content{Parts: []part{{Text: text}}}}

	var values []float64
	operation := func() error {
		body, err := g.post(ctx, endpoint, reqBody)
		if err != nil {
			return err
		}
		var resp embedResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode embedding: %w", err))
		}
		if len(resp.Embedding.Values) == 0 {
			return retry.Permanent(analyzer.ErrEmptyAnalysis)
		}
		values = resp.Embedding.Values
		return nil
	}

	if err := retry.Do(ctx, g.logger, "EmbedContent", operation, retry.DefaultConfig()); err != nil {
		return nil, err
	}
	return values, nil
}

func (g *Gemini) post(ctx context.Context, endpoint string, reqBody any) ([]byte, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("model api returned status %d", resp.StatusCode)
	default:
		return nil, retry.Permanent(fmt.Errorf("model api returned status %d: %s", resp.StatusCode, body))
	}
}

func mimeForPath(objectPath string) string {
	switch strings.ToLower(path.Ext(objectPath)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	default:
		return "image/jpeg"
	}
}
