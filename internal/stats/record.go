package stats

import "time"

// Record 访问事件消息契约
// 生产侧保证字段齐全，gid 允许为空由消费侧查路由表补齐
// 投递语义为至少一次，重复消息带来的少量重复计数是已接受的限制
type Record struct {
	FullShortURL string    `json:"fullShortUrl"`
	Gid          string    `json:"gid,omitempty"`
	UvFirst      bool      `json:"uvFirst"`
	UipFirst     bool      `json:"uipFirst"`
	ClientIP     string    `json:"clientIp"`
	Os           string    `json:"os"`
	Browser      string    `json:"browser"`
	Device       string    `json:"device"`
	Network      string    `json:"network"`
	Visitor      string    `json:"visitorId"`
	VisitTime    time.Time `json:"visitTime"`
}
