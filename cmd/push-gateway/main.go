package main

import (
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"haggle/internal/pkg/bootstrap"
	"haggle/internal/pkg/mq"
	"haggle/internal/pkg/redis"
	"haggle/internal/pkg/session"
	"haggle/internal/service/push"
)

const serviceName = "push-gateway"

func main() {
	nodeID := serviceName + "-" + uuid.New().String()[:8]

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8088,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := appCtx.Config

			redisClient := redis.NewClient(cfg.Infra.Redis.Addr)
			sessionMgr := session.NewManager(redisClient)

			hub := push.NewHub(nodeID)
			reader := mq.NewReader(cfg.Infra.Kafka.Brokers, serviceName, cfg.Infra.Kafka.NegotiationTopic)
			consumer := push.NewConsumer(reader, hub, otel.Tracer(serviceName))

			appCtx.Mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
				push.ServeWS(hub, sessionMgr, w, r)
			})

			// Hub 循环与 Kafka 消费都作为常驻任务挂进启动器
			appCtx.AddWorker(hub.Run)
			appCtx.AddWorker(consumer.Run)
		},
	})
}
