package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"whatsapp-backend/internal/config"

	"github.com/rs/zerolog/log"
)

// Client talks to the Meta Graph API for one Business phone number.
type Client struct {
	Config  *config.Config
	BaseURL string
	http    *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		Config:  cfg,
		BaseURL: cfg.GraphAPIBase,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	Text             *TextObj     `json:"text,omitempty"`
	Image            *MediaObj    `json:"image,omitempty"`
	Video            *MediaObj    `json:"video,omitempty"`
	Audio            *MediaObj    `json:"audio,omitempty"`
	Document         *MediaObj    `json:"document,omitempty"`
	Location         *LocationObj `json:"location,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // For documents
}

type LocationObj struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// SendResult carries the provider-assigned message id for a successful send.
type SendResult struct {
	MessageID string
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// --- Helper Functions ---

func (c *Client) sendRequest(method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	return respBody, nil
}

// --- Messaging Methods ---

// Send posts a message payload and returns the provider message id. A single
// POST, no retry: transient provider failures surface to the caller.
func (c *Client) Send(msg GenericMessage) (*SendResult, error) {
	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.Config.PhoneNumberID)
	respBody, err := c.sendRequest("POST", url, msg)
	if err != nil {
		return nil, err
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, err
	}

	result := &SendResult{}
	if len(parsed.Messages) > 0 {
		result.MessageID = parsed.Messages[0].ID
	}
	return result, nil
}

// SendText sends a plain text message.
func (c *Client) SendText(to, body string) (*SendResult, error) {
	return c.Send(GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text: &TextObj{
			Body: body,
		},
	})
}

// SendImage sends an image by public link with an optional caption.
func (c *Client) SendImage(to, imageURL, caption string) (*SendResult, error) {
	return c.Send(GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "image",
		Image: &MediaObj{
			Link:    imageURL,
			Caption: caption,
		},
	})
}

// --- Media Methods ---

// MediaURL resolves a media id to its short-lived download URL. Failures are
// swallowed into an empty string; inbound processing stores the message
// without a URL rather than failing the whole delivery.
func (c *Client) MediaURL(mediaID string) string {
	url := fmt.Sprintf("%s/%s", c.BaseURL, mediaID)
	resp, err := c.sendRequest("GET", url, nil)
	if err != nil {
		log.Warn().Err(err).Str("media_id", mediaID).Msg("failed to resolve media URL")
		return ""
	}

	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp, &obj); err != nil {
		log.Warn().Err(err).Str("media_id", mediaID).Msg("unexpected media response")
		return ""
	}
	return obj.URL
}

// --- Webhook Verification ---

// VerifyWebhook implements the provider handshake: the subscription is
// accepted iff the mode is "subscribe" and the token matches VERIFY_TOKEN.
func (c *Client) VerifyWebhook(mode, token string) bool {
	return mode == "subscribe" && token != "" && token == c.Config.VerifyToken
}
