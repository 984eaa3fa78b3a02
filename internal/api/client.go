package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a bearer-authenticated HTTP client for the ProfAI backend.
//
// Every method issues exactly one request; there is no retry or backoff.
// A failed call is terminal for that attempt and the caller decides what the
// failure means for its own state.
type Client struct {
	baseURL      string
	token        string
	client       *http.Client
	uploadClient *http.Client
}

// StatusError reports a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.StatusCode, e.Body)
}

// NewClient builds a backend client rooted at baseURL. The token is sent as a
// bearer credential on every request; auth bootstrap lives outside this core.
func NewClient(baseURL, token string, timeout, uploadTimeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if uploadTimeout <= 0 {
		uploadTimeout = 2 * timeout
	}
	return &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:        strings.TrimSpace(token),
		client:       &http.Client{Timeout: timeout},
		uploadClient: &http.Client{Timeout: uploadTimeout},
	}
}

// ListConversations fetches the user's conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := c.getJSON(ctx, "/api/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateConversation registers a new titled, subject-tagged thread.
func (c *Client) CreateConversation(ctx context.Context, title, subject string) (Conversation, error) {
	var out Conversation
	body := map[string]string{"title": title, "subject": subject}
	if err := c.postJSON(ctx, "/api/conversations", body, &out); err != nil {
		return Conversation{}, err
	}
	return out, nil
}

// ListMessages fetches the full ordered history of one conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var out []Message
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExchangeRequest carries one outbound exchange to the tutor.
type ExchangeRequest struct {
	ConversationID string      `json:"conversation_id"`
	Message        string      `json:"message"`
	RequestType    RequestType `json:"request_type"`
	Subject        string      `json:"subject,omitempty"`
}

// Exchange sends one help/hint/answer request and returns the tutor's reply
// message. The embedded TutorResponse is validated against the field-presence
// rules before it is handed to the caller.
func (c *Client) Exchange(ctx context.Context, req ExchangeRequest) (Message, error) {
	if !req.RequestType.Valid() {
		return Message{}, fmt.Errorf("invalid request type %q", req.RequestType)
	}
	var out Message
	if err := c.postJSON(ctx, "/api/chat", req, &out); err != nil {
		return Message{}, err
	}
	if err := ValidateTutorResponse(out.TutorResponse, req.RequestType); err != nil {
		return Message{}, fmt.Errorf("exchange reply: %w", err)
	}
	return out, nil
}

type uploadResponse struct {
	Message string `json:"message"`
}

// UploadFile submits a document or image for server-side text extraction and
// returns the extracted text.
func (c *Client) UploadFile(ctx context.Context, conversationID, filename string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("read upload content: %w", err)
	}
	if err := mw.WriteField("conversation_id", conversationID); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	var out uploadResponse
	if err := c.postMultipart(ctx, "/api/files/upload", mw.FormDataContentType(), &buf, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

type transcriptResponse struct {
	Text string `json:"text"`
}

// Transcribe submits a finished WAV recording for speech-to-text and returns
// the transcript.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "recording.wav")
	if err != nil {
		return "", fmt.Errorf("build audio form: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("write audio form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build audio form: %w", err)
	}

	var out transcriptResponse
	if err := c.postMultipart(ctx, "/api/audio/stt", mw.FormDataContentType(), &buf, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

type synthesisResponse struct {
	AudioBase64 string `json:"audio_base64"`
}

// Synthesize requests spoken audio for text and returns the decoded bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("text", text); err != nil {
		return nil, fmt.Errorf("build tts form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build tts form: %w", err)
	}

	var out synthesisResponse
	if err := c.postMultipart(ctx, "/api/audio/tts", mw.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("decode synthesized audio: %w", err)
	}
	return audio, nil
}

// Me fetches the authenticated user's profile, including running XP and coin
// totals.
func (c *Client) Me(ctx context.Context) (Profile, error) {
	var out Profile
	if err := c.getJSON(ctx, "/api/auth/me", &out); err != nil {
		return Profile{}, err
	}
	return out, nil
}

// Dashboard fetches the backend's aggregate home-screen payload.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var out Dashboard
	if err := c.getJSON(ctx, "/api/dashboard", &out); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

type subjectsResponse struct {
	Subjects []string `json:"subjects"`
}

// Subjects fetches the catalog of valid conversation subjects.
func (c *Client) Subjects(ctx context.Context) ([]string, error) {
	var out subjectsResponse
	if err := c.getJSON(ctx, "/api/subjects", &out); err != nil {
		return nil, err
	}
	return out.Subjects, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(c.client, req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(c.client, req, out)
}

func (c *Client) postMultipart(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(c.uploadClient, req, out)
}

func (c *Client) do(hc *http.Client, req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
