// Package identify talks to the horse photo classifier.
//
// The classifier compares an uploaded photo against known horses and
// answers with its best match and a similarity score. Matches below its
// own threshold come back with the prediction "Unknown".
package identify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strings"
)

// Unknown is the prediction for a photo that matched no horse well enough.
const Unknown = "Unknown"

// Result is the classifier's answer.
type Result struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// Known reports whether the classifier named a horse.
func (r Result) Known() bool { return r.Prediction != "" && r.Prediction != Unknown }

// Classifier identifies the horse in a photo.
type Classifier interface {
	Identify(ctx context.Context, filename string, photo io.Reader) (*Result, error)
}

// Client is the HTTP Classifier.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Classifier = (*Client)(nil)

// NewClient targets the classifier at baseURL. A nil httpClient means
// http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Identify uploads the photo as the multipart field "file".
func (c *Client) Identify(ctx context.Context, filename string, photo io.Reader) (*Result, error) {
	if filename == "" {
		filename = "image.jpg"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, path.Base(filename)))
	hdr.Set("Content-Type", contentType(filename))
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("identify: creating form part: %w", err)
	}
	if _, err := io.Copy(part, photo); err != nil {
		return nil, fmt.Errorf("identify: reading photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("identify: closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/identify", &body)
	if err != nil {
		return nil, fmt.Errorf("identify: building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identify: calling classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identify: classifier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("identify: decoding response: %w", err)
	}
	return &res, nil
}

func contentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}

// Level buckets a confidence score.
type Level string

const (
	LevelNearPerfect Level = "near_perfect"
	LevelVeryStrong  Level = "very_strong"
	LevelLikely      Level = "likely"
	LevelLow         Level = "low"
)

// Assessment is the human reading of a confidence score.
type Assessment struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Describe maps a score to its bucket. Scores above 1 are not trusted.
func Describe(confidence float64) Assessment {
	switch {
	case confidence >= 0.93 && confidence <= 1.0:
		return Assessment{LevelNearPerfect, "Near perfect match: extremely high confidence"}
	case confidence >= 0.88 && confidence < 0.93:
		return Assessment{LevelVeryStrong, "Very strong confidence"}
	case confidence >= 0.75 && confidence < 0.88:
		return Assessment{LevelLikely, "Likely match"}
	default:
		return Assessment{LevelLow, "Low confidence: unable to reliably identify"}
	}
}
