package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/dunamismax/styleflow/internal/domain"
	_ "golang.org/x/image/webp"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash-image"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider sends the source image and a style prompt to a Gemini
// image model and returns the first inline image of the reply.
type GeminiProvider struct {
	models contentGenerator
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiProvider(client.Models, model)
}

func newGeminiProvider(models contentGenerator, model string) (*GeminiProvider, error) {
	if models == nil {
		return nil, errors.New("gemini models client is required")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{models: models, model: model}, nil
}

func (p *GeminiProvider) Transform(ctx context.Context, img domain.ImageAsset, style domain.StylePreset) (domain.ImageAsset, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(stylePrompt(style)),
		genai.NewPartFromBytes(img.Data, img.MimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ImageAsset{}, ctxErr
		}
		return domain.ImageAsset{}, fmt.Errorf("gemini generate model=%s: %w", p.model, err)
	}

	data, mimeType, err := parseImageResponse(resp)
	if err != nil {
		return domain.ImageAsset{}, err
	}
	data, mimeType, width, height, err := normalizeGenerated(data, mimeType)
	if err != nil {
		return domain.ImageAsset{}, err
	}
	return newResult(img, style, data, mimeType, width, height), nil
}

func stylePrompt(style domain.StylePreset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repaint the attached photo in the artistic style of %s", style.Name)
	if style.Artist != "" {
		fmt.Fprintf(&b, " (%s", style.Artist)
		if style.Period != "" {
			fmt.Fprintf(&b, ", %s", style.Period)
		}
		b.WriteString(")")
	}
	b.WriteString(".")
	if style.Description != "" {
		b.WriteString(" ")
		b.WriteString(style.Description)
	}
	b.WriteString(" Keep the composition and subject unchanged and reply with the image only.")
	return b.String()
}

func parseImageResponse(resp *genai.GenerateContentResponse) ([]byte, string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, "", errors.New("gemini returned no candidates")
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, part.InlineData.MIMEType, nil
			}
		}
	}
	return nil, "", errors.New("gemini returned no image data")
}

// normalizeGenerated re-encodes anything that is not JPEG or PNG as PNG.
func normalizeGenerated(data []byte, mimeType string) ([]byte, string, int, int, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("decode generated image (%s): %w", mimeType, err)
	}
	if format == "jpeg" || format == "png" {
		return data, formatToMimeType(format), cfg.Width, cfg.Height, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("decode generated image (%s): %w", mimeType, err)
	}
	out, err := encodeImage(decoded, "png", 0)
	if err != nil {
		return nil, "", 0, 0, err
	}
	return out, domain.MimeTypePNG, cfg.Width, cfg.Height, nil
}
