package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/service"
	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

const visionImageCap = 10 * 1024 * 1024

var visionMimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

var visionActionPrompts = map[string]string{
	"graph_analysis":       "Analyze this chart or graph. Identify the axes, the series, the trend, and any notable data points. Be precise with numbers you can read.",
	"describe_picture":     "Describe this image in detail: subjects, setting, composition, text, and anything notable.",
	"extract_text_picture": "Extract all text visible in this image. Preserve structure and formatting. Output only the text.",
	"extract_text_pdf":     "Extract all text visible on this document page. Preserve structure. Output only the text.",
}

// VisionAnalysisTool sends images to the vision pool as data URIs. It is
// registered only when the vision pool has nodes.
type VisionAnalysisTool struct {
	upstream service.UpstreamClient
	egress   *Egress
	root     string // workspace root for local targets
	model    string
	logger   *zap.Logger
}

func NewVisionAnalysisTool(upstream service.UpstreamClient, egress *Egress, root, model string, logger *zap.Logger) *VisionAnalysisTool {
	return &VisionAnalysisTool{
		upstream: upstream,
		egress:   egress,
		root:     root,
		model:    model,
		logger:   logger.With(zap.String("tool", "vision_analysis")),
	}
}

func (t *VisionAnalysisTool) Name() string          { return "vision_analysis" }
func (t *VisionAnalysisTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *VisionAnalysisTool) Description() string {
	return "Analyze an image with the vision model: describe pictures, read charts, extract text from images or document scans."
}

func (t *VisionAnalysisTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"graph_analysis", "describe_picture", "extract_text_picture", "extract_text_pdf"},
			},
			"target": map[string]interface{}{
				"type":        "string",
				"description": "Image path in the sandbox workspace, or an http(s) URL.",
			},
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "Optional extra instruction for the vision model.",
			},
		},
		"required": []string{"action", "target"},
	}
}

func (t *VisionAnalysisTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	action := strArg(args, "action")
	target := strings.TrimSpace(strArg(args, "target"))
	if target == "" {
		return fail("Error: 'target' parameter is required")
	}
	basePrompt, known := visionActionPrompts[action]
	if !known {
		return fail("Error: unknown action '%s'", action)
	}
	if extra := strings.TrimSpace(strArg(args, "prompt")); extra != "" {
		basePrompt += "\n\nAdditional instruction: " + extra
	}

	dataURI, err := t.loadImage(ctx, target)
	if err != nil {
		return fail("Error: cannot load image: %v", err)
	}

	resp, err := t.upstream.Chat(ctx, service.PoolVision, &service.ChatRequest{
		Messages: []entity.Message{
			{Role: "user", Content: basePrompt, Images: []string{dataURI}},
		},
		Model:       t.model,
		Temperature: 0.2,
		MaxTokens:   2048,
	})
	if err != nil {
		return fail("Error: vision model call failed: %v", err)
	}

	t.logger.Info("Vision analysis completed",
		zap.String("action", action), zap.String("target", truncate(target, 120)))
	return ok(strings.TrimSpace(resp.Message.Content))
}

func (t *VisionAnalysisTool) loadImage(ctx context.Context, target string) (string, error) {
	var data []byte
	var ext string

	if urlRe.MatchString(target) {
		client, err := t.egress.AnonClient()
		if err != nil {
			return "", err
		}
		reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, "GET", target, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("User-Agent", browserUA)
		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		data, err = io.ReadAll(io.LimitReader(resp.Body, visionImageCap+1))
		if err != nil {
			return "", err
		}
		ext = strings.ToLower(filepath.Ext(strings.Split(target, "?")[0]))
	} else {
		full := filepath.Join(t.root, filepath.Clean("/"+target))
		var err error
		data, err = os.ReadFile(full)
		if err != nil {
			return "", fmt.Errorf("file not found in workspace: %s", target)
		}
		ext = strings.ToLower(filepath.Ext(target))
	}

	if len(data) > visionImageCap {
		return "", fmt.Errorf("image exceeds the %d MB limit", visionImageCap/(1024*1024))
	}
	mime, known := visionMimeTypes[ext]
	if !known {
		mime = http.DetectContentType(data)
		if !strings.HasPrefix(mime, "image/") {
			return "", fmt.Errorf("unsupported image type '%s'", ext)
		}
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}
