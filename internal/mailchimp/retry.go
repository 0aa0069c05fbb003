package mailchimp

import "time"

// CallResult はHTTPステータスコードに基づく呼び出し結果の分類。
type CallResult int

const (
	// ResultOK は成功（2xx）。
	ResultOK CallResult = iota
	// ResultStop は再試行しても回復しないステータス（400/401/403/404など）。
	ResultStop
	// ResultBackoff はバックオフ後の再試行が妥当なステータス（429/5xx）。
	ResultBackoff
)

const (
	// defaultRetryBase は指数バックオフの初回遅延。
	defaultRetryBase = 500 * time.Millisecond
	// maxRetryDelay は指数バックオフの最大遅延。
	maxRetryDelay = 8 * time.Second
)

// ClassifyHTTPStatus はHTTPステータスコードを呼び出し結果に分類する。
func ClassifyHTTPStatus(statusCode int) CallResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ResultOK
	case statusCode == 429:
		return ResultBackoff
	case statusCode >= 500:
		return ResultBackoff
	default:
		return ResultStop
	}
}

// CalculateBackoff は試行回数に基づいて指数バックオフ遅延を計算する。
// attempt=0でbase、以降2倍ずつ増加し、最大8秒。
func CalculateBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = defaultRetryBase
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
