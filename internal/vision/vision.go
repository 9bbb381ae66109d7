// Package vision talks to the object-detection and image-editing service
// over HTTP+JSON.
package vision

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/playperu/hiddencatch/internal/diffset"
	"github.com/playperu/hiddencatch/internal/geometry"
)

// DefaultBoxScale is the box_2d value of a full image edge when neither the
// client nor the response says otherwise.
const DefaultBoxScale = 1000

type Client struct {
	baseURL  string
	apiKey   string
	boxScale float64
	http     *http.Client
}

// New builds a client. boxScale is the detector's box_2d scale; a response
// carrying box_scale overrides it.
func New(baseURL, apiKey string, timeout time.Duration, boxScale float64) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if boxScale <= 0 {
		boxScale = DefaultBoxScale
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		boxScale: boxScale,
		http:     &http.Client{Timeout: timeout},
	}
}

type detectRequest struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// DetectedObject is one box as the service reports it. Box2D is
// [ymin, xmin, ymax, xmax] on the response's box scale.
type DetectedObject struct {
	ObjectName       string     `json:"object_name"`
	Box2D            [4]float64 `json:"box_2d"`
	ModificationIdea string     `json:"modification_idea,omitempty"`
}

type detectResponse struct {
	BoxScale float64          `json:"box_scale,omitempty"`
	Objects  []DetectedObject `json:"objects"`
}

//go:embed detect_response.schema.json
var detectSchemaJSON []byte

var detectSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(detectSchemaJSON))
})

// validateDetectResponse rejects payloads whose boxes are malformed before
// they reach the geometry code.
func validateDetectResponse(doc []byte) error {
	schema, err := detectSchema()
	if err != nil {
		return fmt.Errorf("loading detect schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validating detect response: %w", err)
	}
	if !res.Valid() {
		var msgs []string
		for i, e := range res.Errors() {
			if i >= 5 {
				break
			}
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid detect response: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Detect returns the objects found in the image, converted to pixel space.
func (c *Client) Detect(ctx context.Context, image []byte, width, height int) ([]diffset.Object, error) {
	raw, err := c.post(ctx, "/detect", detectRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		MimeType:    http.DetectContentType(image),
		Width:       width,
		Height:      height,
	})
	if err != nil {
		return nil, err
	}
	if err := validateDetectResponse(raw); err != nil {
		return nil, err
	}
	var resp detectResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("vision /detect: decoding response: %w", err)
	}

	scale := c.boxScale
	if resp.BoxScale > 0 {
		scale = resp.BoxScale
	}
	objects := make([]diffset.Object, 0, len(resp.Objects))
	for _, o := range resp.Objects {
		objects = append(objects, diffset.Object{
			Rect:   geometry.FromNormalizedBox(o.Box2D, scale, width, height),
			Label:  o.ObjectName,
			Prompt: o.ModificationIdea,
		})
	}
	return objects, nil
}

type editRequest struct {
	ImageBase64 string `json:"image_base64"`
	MaskBase64  string `json:"mask_base64"`
	Prompt      string `json:"prompt"`
}

type editResponse struct {
	ImageBase64 string `json:"image_base64"`
}

// Edit inpaints the white area of mask following prompt and returns the new
// image bytes.
func (c *Client) Edit(ctx context.Context, image, mask []byte, prompt string) ([]byte, error) {
	raw, err := c.post(ctx, "/edit", editRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		MaskBase64:  base64.StdEncoding.EncodeToString(mask),
		Prompt:      prompt,
	})
	if err != nil {
		return nil, err
	}
	var resp editResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("vision /edit: decoding response: %w", err)
	}
	if resp.ImageBase64 == "" {
		return nil, fmt.Errorf("edit returned no image")
	}
	out, err := base64.StdEncoding.DecodeString(resp.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("decoding edited image: %w", err)
	}
	return out, nil
}

// maxResponseBytes bounds a response body; edited images arrive inline.
const maxResponseBytes = 64 << 20

func (c *Client) post(ctx context.Context, path string, in any) ([]byte, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vision %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("vision %s: reading response: %w", path, err)
	}
	return data, nil
}
