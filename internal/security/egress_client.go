package security

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// NewEgressClient はMailchimp API向けの外部通信用HTTPクライアントを生成する。
// safeurlによりhttps/443以外と、DNS解決後にプライベートIP・ループバック・
// リンクローカル（メタデータIP含む）へ向かう接続はDialerレベルで拒否される。
func NewEgressClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}
