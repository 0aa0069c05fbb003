package mailchimp

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/newsdispatch/internal/metrics"
)

const (
	// maxErrorBodySize はエラーレスポンスとして読み取るボディの上限（64KB）。
	maxErrorBodySize = 64 * 1024
	userAgent        = "newsdispatch/1.0"
	campaignFields   = "campaigns.id,campaigns.status,campaigns.create_time,campaigns.recipients.list_id,campaigns.settings.title,total_items"

	// maxDrainSize は接続再利用のために読み捨てるボディの上限（1MB）。
	maxDrainSize = 1 << 20
)

// ClientConfig はClientの接続設定。
type ClientConfig struct {
	APIKey       string
	ServerPrefix string        // 例: "us21"。空の場合はAPIキーの末尾から推定する
	RateLimit    float64       // req/sec。0以下で無制限
	MaxRetries   int           // 一時的エラーの最大再試行回数
	RetryBase    time.Duration // バックオフの初回遅延
	BaseURL      string        // テスト用にエンドポイントを差し替え可能
}

// Client はMailchimp Marketing APIのクライアント。
// 全呼び出しはレートリミッターを通り、429/5xxはバックオフ付きで再試行する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	maxRetries int
	retryBase  time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg ClientConfig, httpClient *http.Client, logger *slog.Logger, m metrics.MetricsCollector) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURLFor(cfg.ServerPrefix, cfg.APIKey)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: maxRetries,
		retryBase:  cfg.RetryBase,
	}
}

// BaseURLFor はサーバープレフィックスからAPIのベースURLを組み立てる。
// プレフィックスが空の場合はAPIキー末尾の "-us21" 形式から推定する。
func BaseURLFor(serverPrefix, apiKey string) string {
	if serverPrefix == "" {
		if i := strings.LastIndex(apiKey, "-"); i >= 0 && i < len(apiKey)-1 {
			serverPrefix = apiKey[i+1:]
		}
	}
	return fmt.Sprintf("https://%s.api.mailchimp.com/3.0", serverPrefix)
}

// SubscriberHash はリストメンバーのIDとして使う小文字メールアドレスのMD5を返す。
func SubscriberHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// Ping はAPIへの疎通と認証情報を確認する。
func (c *Client) Ping(ctx context.Context) error {
	var resp pingResponse
	if err := c.do(ctx, "ping", http.MethodGet, "/ping", nil, nil, &resp, true); err != nil {
		return err
	}
	if resp.HealthStatus == "" {
		return fmt.Errorf("mailchimp ping: health_statusが空です")
	}
	return nil
}

// ListCampaigns は条件に合うキャンペーンを作成日時の降順で取得する。
func (c *Client) ListCampaigns(ctx context.Context, filter ListFilter) ([]Campaign, error) {
	q := url.Values{}
	q.Set("fields", campaignFields)
	q.Set("sort_field", "create_time")
	q.Set("sort_dir", "DESC")
	if filter.Count > 0 {
		q.Set("count", strconv.Itoa(filter.Count))
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.ListID != "" {
		q.Set("list_id", filter.ListID)
	}

	var resp listCampaignsResponse
	if err := c.do(ctx, "list", http.MethodGet, "/campaigns", q, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Campaigns, nil
}

// CreateCampaign はキャンペーンを下書きとして作成し、そのIDを返す。
func (c *Client) CreateCampaign(ctx context.Context, spec CampaignSpec) (string, error) {
	if spec.Type == "" {
		spec.Type = "regular"
	}
	var resp createCampaignResponse
	if err := c.do(ctx, "create", http.MethodPost, "/campaigns", nil, spec, &resp, false); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("mailchimp create: レスポンスにキャンペーンIDが含まれていません")
	}
	return resp.ID, nil
}

// SetContent はキャンペーン本文のHTMLを置き換える。
func (c *Client) SetContent(ctx context.Context, campaignID, html string) error {
	path := "/campaigns/" + url.PathEscape(campaignID) + "/content"
	return c.do(ctx, "set_content", http.MethodPut, path, nil, setContentRequest{HTML: html}, nil, true)
}

// Send はキャンペーンを即時送信する。
func (c *Client) Send(ctx context.Context, campaignID string) error {
	path := "/campaigns/" + url.PathEscape(campaignID) + "/actions/send"
	return c.do(ctx, "send", http.MethodPost, path, nil, nil, nil, false)
}

// GetStatus はキャンペーンの現在の状態を取得する。
func (c *Client) GetStatus(ctx context.Context, campaignID string) (CampaignStatus, error) {
	q := url.Values{}
	q.Set("fields", "id,status")
	var resp campaignStatusResponse
	if err := c.do(ctx, "get_status", http.MethodGet, "/campaigns/"+url.PathEscape(campaignID), q, nil, &resp, true); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// UpsertMember はリストメンバーを作成または更新する。
// 既存メンバーの購読状態は変更しない（status_if_newは新規時のみ適用）。
func (c *Client) UpsertMember(ctx context.Context, listID string, member Member) error {
	path := "/lists/" + url.PathEscape(listID) + "/members/" + SubscriberHash(member.EmailAddress)
	member.EmailAddress = strings.ToLower(strings.TrimSpace(member.EmailAddress))
	return c.do(ctx, "upsert_member", http.MethodPut, path, nil, member, nil, true)
}

// AddTags はリストメンバーにタグを付与する。
func (c *Client) AddTags(ctx context.Context, listID, email string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	req := tagsRequest{Tags: make([]tag, 0, len(tags))}
	for _, t := range tags {
		req.Tags = append(req.Tags, tag{Name: t, Status: "active"})
	}
	path := "/lists/" + url.PathEscape(listID) + "/members/" + SubscriberHash(email) + "/tags"
	return c.do(ctx, "add_tags", http.MethodPost, path, nil, req, nil, true)
}

// do はレート制限と再試行を伴ってAPIを呼び出す。
// idempotentがfalseの呼び出しは重複作成を避けるため429のみ再試行する。
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any, idempotent bool) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("mailchimp %s: リクエストのエンコードに失敗しました: %w", op, err)
		}
		payload = b
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("mailchimp %s: レート制限の待機が中断されました: %w", op, err)
		}

		start := time.Now()
		status, err := c.doOnce(ctx, op, method, path, query, payload, out)
		c.metrics.RecordRemoteCall(op, status, time.Since(start), err)
		if err == nil {
			return nil
		}

		if !c.shouldRetry(err, status, idempotent) || attempt >= c.maxRetries {
			return err
		}

		delay := CalculateBackoff(c.retryBase, attempt)
		c.logger.Warn("Mailchimp APIの一時的なエラーのため再試行します",
			slog.String("operation", op),
			slog.Int("attempt", attempt+1),
			slog.Int("http_status", status),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("mailchimp %s: %w", op, ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *Client) shouldRetry(err error, status int, idempotent bool) bool {
	if !IsTransient(err) {
		return false
	}
	if idempotent {
		return true
	}
	return status == http.StatusTooManyRequests
}

// doOnce は1回分のHTTPリクエストを実行し、ステータスコードを返す。
func (c *Client) doOnce(ctx context.Context, op, method, path string, query url.Values, payload []byte, out any) (int, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("mailchimp %s: HTTPリクエストの作成に失敗しました: %w", op, err)
	}
	req.SetBasicAuth("newsdispatch", c.apiKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("mailchimp %s: %w", op, err)
	}
	defer resp.Body.Close()
	// 接続を再利用できるよう読み残しを捨ててから閉じる
	defer drainBody(resp.Body)

	if ClassifyHTTPStatus(resp.StatusCode) != ResultOK {
		return resp.StatusCode, decodeAPIError(op, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("mailchimp %s: レスポンスJSONのパースに失敗しました: %w", op, err)
	}
	return resp.StatusCode, nil
}

func drainBody(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainSize))
}

func decodeAPIError(op string, resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Operation: op}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, apiErr)
	}
	// ボディのstatusで上書きされないよう実ステータスを優先する
	apiErr.StatusCode = resp.StatusCode
	apiErr.Operation = op
	if apiErr.Title == "" {
		apiErr.Title = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
