// Package fingerprint は記事の状態から冪等キーを導出する。
//
// キーはリモートキャンペーンのタイトルに埋め込む照合用の目印であり、
// 強い重複排除の保証ではない。タイムスタンプを更新せずにタイトルや本文だけを
// 変更した場合は同じキーになる。
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hitoshi/newsdispatch/internal/model"
)

// KeyLength は冪等キーの16進文字数。
const KeyLength = 24

// ComputeKey はdocumentIdと最新タイムスタンプから決定的なキーを計算する。
// タイムスタンプはUpdatedAt/PublishedAt/CreatedAtのうち最も新しいものをUTCのRFC3339Nanoで使う。
func ComputeKey(entry *model.ContentEntry) string {
	if entry == nil {
		return hashBase(":")
	}
	ts := ""
	if latest := entry.LatestTimestamp(); latest != nil {
		ts = latest.UTC().Format(time.RFC3339Nano)
	}
	return hashBase(entry.Identity() + ":" + ts)
}

func hashBase(base string) string {
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])[:KeyLength]
}
