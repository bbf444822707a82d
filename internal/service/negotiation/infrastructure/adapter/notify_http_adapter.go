// internal/service/negotiation/infrastructure/adapter/notify_http_adapter.go
package adapter

import (
	"context"

	"haggle/internal/pkg/httpclient"
)

// NotificationHTTPAdapter 把渲染好的议价话术投递给外部的消息服务。
// 渠道（短信/邮件/站内信）由对方决定，这里只负责把文案送到。
type NotificationHTTPAdapter struct {
	client *httpclient.Client
	url    string
}

func NewNotificationHTTPAdapter(client *httpclient.Client, url string) *NotificationHTTPAdapter {
	return &NotificationHTTPAdapter{client: client, url: url}
}

func (a *NotificationHTTPAdapter) NotifyDecision(ctx context.Context, userID, sku, message string) error {
	return a.client.PostJSON(ctx, a.url, map[string]string{
		"user_id": userID,
		"sku":     sku,
		"message": message,
	})
}

// NoopNotifier 在未配置消息服务时使用。
type NoopNotifier struct{}

func (NoopNotifier) NotifyDecision(ctx context.Context, userID, sku, message string) error {
	return nil
}
