// internal/service/webhook/domain/payload.go
package domain

import (
	"encoding/json"
	"strconv"
)

// SessionIDProperty 是外部平台订单行里携带议价会话 ID 的属性名。
// 商城前端在创建订单时把它写进 line item 的自定义属性。
const SessionIDProperty = "negotiation_session_id"

// OrderEvent 是从平台订单载荷中抽取出的、对账所需的最小信息。
type OrderEvent struct {
	EventID    string   // 平台侧订单/事件 ID，用于幂等去重
	SessionIDs []string // 订单行里嵌入的议价会话 ID
}

// ParseOrderEvent 按平台口径解析 order-created 载荷。
// 平台字段命名不同：Shopify 的行属性在 properties[{name,value}]，
// WooCommerce 在 meta_data[{key,value}]。
func ParseOrderEvent(platform Platform, rawBody []byte) (*OrderEvent, error) {
	switch platform {
	case PlatformShopify:
		return parseShopifyOrder(rawBody)
	case PlatformWooCommerce:
		return parseWooOrder(rawBody)
	default:
		return nil, ErrUnsupportedPlatform
	}
}

func parseShopifyOrder(rawBody []byte) (*OrderEvent, error) {
	var payload struct {
		ID        json.Number `json:"id"`
		LineItems []struct {
			SKU        string `json:"sku"`
			Properties []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"properties"`
		} `json:"line_items"`
	}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, ErrMalformedPayload
	}

	event := &OrderEvent{EventID: payload.ID.String()}
	for _, item := range payload.LineItems {
		for _, prop := range item.Properties {
			if prop.Name == SessionIDProperty && prop.Value != "" {
				event.SessionIDs = append(event.SessionIDs, prop.Value)
			}
		}
	}
	return event, nil
}

func parseWooOrder(rawBody []byte) (*OrderEvent, error) {
	var payload struct {
		ID        int64 `json:"id"`
		LineItems []struct {
			SKU      string `json:"sku"`
			MetaData []struct {
				Key   string          `json:"key"`
				Value json.RawMessage `json:"value"`
			} `json:"meta_data"`
		} `json:"line_items"`
	}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, ErrMalformedPayload
	}

	event := &OrderEvent{EventID: strconv.FormatInt(payload.ID, 10)}
	for _, item := range payload.LineItems {
		for _, meta := range item.MetaData {
			if meta.Key != SessionIDProperty {
				continue
			}
			var value string
			if err := json.Unmarshal(meta.Value, &value); err == nil && value != "" {
				event.SessionIDs = append(event.SessionIDs, value)
			}
		}
	}
	return event, nil
}
