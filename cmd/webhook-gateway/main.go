package main

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"haggle/internal/pkg/bootstrap"
	"haggle/internal/pkg/clock"
	"haggle/internal/pkg/mq"
	"haggle/internal/pkg/redis"
	negotiationapp "haggle/internal/service/negotiation/application"
	"haggle/internal/service/negotiation/domain"
	"haggle/internal/service/negotiation/infrastructure"
	negotiationadapter "haggle/internal/service/negotiation/infrastructure/adapter"
	"haggle/internal/service/negotiation/infrastructure/rule"
	"haggle/internal/service/webhook/application"
	"haggle/internal/service/webhook/infrastructure/adapter"
	"haggle/internal/service/webhook/interfaces"
)

const serviceName = "webhook-gateway"

func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8085,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := appCtx.Config
			tracer := otel.Tracer(serviceName)

			db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
			if err != nil {
				log.Fatalf("FATAL: failed to connect to mysql: %v", err)
			}
			repo := infrastructure.NewGormSessionRepository(db)

			policy, err := rule.NewCelPolicyEngine(cfg.App.Negotiation.PolicyRule)
			if err != nil {
				log.Fatalf("FATAL: invalid negotiability rule: %v", err)
			}

			// 对账只走 RedeemBySessionID 这一条只写路径，
			// 锁和通知用最简实现即可
			nc := cfg.App.Negotiation
			evaluator := domain.NewEvaluator(domain.EvaluatorConfig{
				CostRatio:            nc.CostRatio,
				MinimumMarginPct:     nc.MinimumMarginPct,
				TargetMarginPct:      nc.TargetMarginPct,
				MaxDiscountPct:       nc.MaxDiscountPct,
				MinDiscountPct:       nc.MinDiscountPct,
				SweetSpotDiscountPct: nc.SweetSpotDiscountPct,
				RoundCap:             nc.RoundCap,
				RoundingStep:         nc.RoundingStep,
				ExhaustionPolicy:     domain.ExhaustionPolicy(nc.ExhaustionPolicy),
			}, domain.NewMessageCatalog(time.Now().UnixNano()))

			writer := mq.NewWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.NegotiationTopic)
			negotiationSvc := negotiationapp.NewNegotiationService(
				repo, evaluator, policy,
				negotiationadapter.NewLocalSessionLocker(),
				negotiationadapter.NewKafkaEventPublisher(writer),
				negotiationadapter.NoopNotifier{},
				tracer, clock.System{},
				negotiationapp.LifecycleConfig{
					DiscountTTL: cfg.App.Negotiation.DiscountTTL,
					IdleTimeout: cfg.App.Negotiation.IdleTimeout,
				},
			)

			redisClient := redis.NewClient(cfg.Infra.Redis.Addr)
			deduper := adapter.NewRedisDeduper(redisClient)

			secrets := make(map[string]string, len(cfg.App.Webhook.Platforms))
			for platform, pc := range cfg.App.Webhook.Platforms {
				secrets[platform] = pc.Secret
			}

			reconciler := application.NewReconcilerService(
				secrets, negotiationSvc, deduper, cfg.App.Webhook.DedupTTL, tracer,
			)
			interfaces.NewWebhookHandler(reconciler).RegisterRoutes(appCtx.Mux)
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
	})
}
