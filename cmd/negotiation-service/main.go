package main

import (
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"haggle/internal/pkg/bootstrap"
	"haggle/internal/pkg/clock"
	"haggle/internal/pkg/httpclient"
	"haggle/internal/pkg/logger"
	"haggle/internal/pkg/mq"
	checkoutapp "haggle/internal/service/checkout/application"
	checkoutifaces "haggle/internal/service/checkout/interfaces"
	"haggle/internal/service/negotiation/application"
	"haggle/internal/service/negotiation/domain"
	"haggle/internal/service/negotiation/infrastructure"
	"haggle/internal/service/negotiation/infrastructure/adapter"
	"haggle/internal/service/negotiation/infrastructure/rule"
	"haggle/internal/service/negotiation/interfaces"
	"haggle/internal/service/negotiation/port"
)

const serviceName = "negotiation-service"

func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8084,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := appCtx.Config
			tracer := otel.Tracer(serviceName)

			db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
			if err != nil {
				log.Fatalf("FATAL: failed to connect to mysql: %v", err)
			}
			repo := infrastructure.NewGormSessionRepository(db)
			if err := repo.AutoMigrate(); err != nil {
				log.Fatalf("FATAL: failed to migrate schema: %v", err)
			}

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

			policy, err := rule.NewCelPolicyEngine(nc.PolicyRule)
			if err != nil {
				log.Fatalf("FATAL: invalid negotiability rule: %v", err)
			}

			// 分布式锁优先走 ZooKeeper，连不上时退化为进程内锁
			var locker port.SessionLocker
			zkLocker, err := adapter.NewZkSessionLocker(cfg.Infra.Zookeeper.Servers)
			if err != nil {
				logger.Logger.Warn().Err(err).Msg("zookeeper unavailable, falling back to in-process locks")
				locker = adapter.NewLocalSessionLocker()
			} else {
				locker = zkLocker
			}

			writer := mq.NewWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.NegotiationTopic)
			publisher := adapter.NewKafkaEventPublisher(writer)

			// 通知服务地址：静态配置优先，其次通过 Nacos 发现
			notifyURL := cfg.Infra.Notification.URL
			if notifyURL == "" && appCtx.Nacos != nil {
				if base, err := appCtx.Nacos.GetHealthyInstanceURL("notification-service"); err == nil {
					notifyURL = base + "/notify"
				} else {
					logger.Logger.Warn().Err(err).Msg("notification service not discoverable, notifications disabled")
				}
			}
			var notifier port.Notifier = adapter.NoopNotifier{}
			if notifyURL != "" {
				notifier = adapter.NewNotificationHTTPAdapter(httpclient.NewClient(tracer), notifyURL)
			}

			service := application.NewNegotiationService(
				repo, evaluator, policy, locker, publisher, notifier,
				tracer, clock.System{},
				application.LifecycleConfig{
					DiscountTTL: nc.DiscountTTL,
					IdleTimeout: nc.IdleTimeout,
				},
			)
			interfaces.NewNegotiationHandler(service).RegisterRoutes(appCtx.Mux)

			// 结账前的购物车校验与议价共用一套会话存储
			validator := checkoutapp.NewCartValidator(repo, clock.System{}, tracer)
			checkoutifaces.NewCheckoutHandler(validator).RegisterRoutes(appCtx.Mux)
		},
	})
}
