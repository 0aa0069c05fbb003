package model

import "strings"

// Subscriber はニュースレター購読者を表す。
type Subscriber struct {
	Email     string
	FirstName string
	LastName  string
	Company   string
	Country   string
}

// NormalizedEmail は前後空白を除去し小文字化したメールアドレスを返す。
func (s Subscriber) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(s.Email))
}
