package datapush

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"RosterDashboard/src/metrics"
	"RosterDashboard/src/storage"
)

// 默认重试参数
const (
	RETRY_TIMES    = 3
	RETRY_INTERVAL = 2 * time.Second
)

var ErrPushRejected = errors.New("webhook rejected message")

// WebhookResponse 机器人 webhook 的响应，errcode 为 0 表示成功
type WebhookResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Image 随消息一起上传的图片
type Image struct {
	Name string
	Data []byte
}

// Message 推送的消息，带图片时以 multipart 发送
type Message struct {
	Title  string
	Text   string // markdown 正文
	Images []Image
}

type markdownPayload struct {
	MsgType  string `json:"msgtype"`
	Markdown struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	} `json:"markdown"`
}

// Pusher 把报表摘要推送到 webhook
type Pusher struct {
	URL           string
	Client        *http.Client
	RetryTimes    int
	RetryInterval time.Duration

	logger  *storage.Logger
	metrics *metrics.Manager
}

func NewPusher(url string, retryTimes int, retryInterval time.Duration, logger *storage.Logger, m *metrics.Manager) *Pusher {
	if logger == nil {
		logger = storage.Discard()
	}
	if retryTimes <= 0 {
		retryTimes = RETRY_TIMES
	}
	if retryInterval < 0 {
		retryInterval = RETRY_INTERVAL
	}
	return &Pusher{
		URL:           url,
		Client:        &http.Client{Timeout: 30 * time.Second},
		RetryTimes:    retryTimes,
		RetryInterval: retryInterval,
		logger:        logger,
		metrics:       m,
	}
}

// Push 发送消息，失败时按配置重试
func (p *Pusher) Push(ctx context.Context, msg Message) error {
	return retry(ctx, func() error {
		err := p.send(ctx, msg)
		p.metrics.RecordPush(err == nil)
		if err != nil {
			p.logger.Warning("webhook push failed", "title", msg.Title, "error", err)
		}
		return err
	}, p.RetryTimes, p.RetryInterval)
}

func (p *Pusher) send(ctx context.Context, msg Message) error {
	var payload markdownPayload
	payload.MsgType = "markdown"
	payload.Markdown.Title = msg.Title
	payload.Markdown.Text = msg.Text

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	body := bytes.NewBuffer(payloadBytes)
	contentType := "application/json"
	if len(msg.Images) > 0 {
		body, contentType, err = multipartBody(payloadBytes, msg.Images)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrPushRejected, resp.StatusCode)
	}

	var result WebhookResponse
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("%w: %d %s", ErrPushRejected, result.ErrCode, result.ErrMsg)
	}
	return nil
}

// multipartBody payload 字段放 JSON，每张图片一个 media 字段
func multipartBody(payload []byte, images []Image) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("payload", string(payload)); err != nil {
		return nil, "", fmt.Errorf("write payload field: %w", err)
	}
	for _, img := range images {
		part, err := writer.CreateFormFile("media", img.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("write %s: %w", img.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// retry 最多执行 times 次，两次之间等待 interval，ctx 取消时立即返回
func retry(ctx context.Context, fn func() error, times int, interval time.Duration) error {
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == times-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", times, err)
}
