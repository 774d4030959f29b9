// cmd/shop-service/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/lock"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/config"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/mysqlx"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/redisx"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/tracing"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/zkx"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/auditor"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/inventory"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/application"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/infrastructure"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/interfaces"
	promodomain "github.com/Aru0077/shop-service-mysql-sub000/internal/service/promotion/domain"
	promoinfra "github.com/Aru0077/shop-service-mysql-sub000/internal/service/promotion/infrastructure"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/promotion/infrastructure/rule"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/scheduler"
)

const serviceName = "shop-service"

// main 是应用的组装根: 创建并组装所有依赖, 然后启动。
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(serviceName)

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.JaegerEndpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}
	defer tp.Shutdown(context.Background())
	tracer := otel.Tracer(serviceName)

	db, err := mysqlx.Open(cfg.Infra.MysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	rdb, err := redisx.NewClient(cfg.Infra.RedisAddr)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// 库存: 缓存 + 台账 + 预占引擎
	stockCache, err := inventory.NewRedisStockCache(rdb)
	if err != nil {
		log.Fatalf("failed to init stock cache: %v", err)
	}
	stockLedger := inventory.NewGormLedger(db)
	if err := stockLedger.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate stock tables: %v", err)
	}
	engine := inventory.NewEngine(stockCache, stockLedger, tracer)

	// 分布式锁
	locks, err := lock.NewRedisManager(rdb)
	if err != nil {
		log.Fatalf("failed to init lock manager: %v", err)
	}

	// 活动
	ruleEngine, err := rule.NewCELRuleEngine()
	if err != nil {
		log.Fatalf("failed to init rule engine: %v", err)
	}
	promoRepo := promoinfra.NewGormPromotionRepository(db)
	if err := promoRepo.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate promotion tables: %v", err)
	}
	selector := promodomain.NewSelector(ruleEngine)

	// 订单
	orderRepo, err := infrastructure.NewGormOrderRepository(db)
	if err != nil {
		log.Fatalf("failed to init order repository: %v", err)
	}
	checkoutReader := infrastructure.NewGormCheckoutReader(db)
	markers := infrastructure.NewRedisMarkerStore(rdb)
	delayScheduler := infrastructure.NewSchedulerKafkaAdapter(cfg.Infra.KafkaBrokers)
	defer delayScheduler.Close()
	paidProducer := infrastructure.NewPaidKafkaProducer(cfg.Infra.KafkaBrokers)
	defer paidProducer.Close()

	clock := clockwork.NewRealClock()
	orderSvc := application.NewOrderApplicationService(
		orderRepo, checkoutReader, promoRepo, selector,
		engine, markers, delayScheduler, paidProducer, locks, clock, tracer,
		cfg.Order.PaymentWindow, cfg.Order.AutoCompleteAfter,
		cfg.Order.IdempotencyTTL, cfg.Order.LockTTL,
	)

	// 单实例任务的选主: 配置了 Zookeeper 用临时节点竞选, 否则单机模式
	var leader interface{ IsLeader() bool } = zkx.StandaloneElector{}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if len(cfg.Infra.ZookeeperAddrs) > 0 {
		elector, err := zkx.NewElector(cfg.Infra.ZookeeperAddrs, serviceName)
		if err != nil {
			log.Fatalf("failed to connect zookeeper: %v", err)
		}
		defer elector.Close()
		leader = elector
		g.Go(func() error {
			elector.Run(ctx)
			return nil
		})
	}

	// 后台任务
	g.Go(func() error {
		scheduler.NewDelayPoller(cfg.Infra.KafkaBrokers, serviceName+"-delay", clock, tracer).Run(ctx)
		return nil
	})
	g.Go(func() error {
		infrastructure.NewTimeoutEventConsumer(cfg.Infra.KafkaBrokers, serviceName+"-timeout", orderSvc).Start(ctx)
		return nil
	})
	g.Go(func() error {
		infrastructure.NewPaidEventConsumer(cfg.Infra.KafkaBrokers, serviceName+"-paid", orderSvc).Start(ctx)
		return nil
	})
	g.Go(func() error {
		scheduler.NewSweeper(orderSvc, leader, clock, cfg.Order.SweepInterval).Run(ctx)
		return nil
	})
	g.Go(func() error {
		auditor.New(stockCache, stockLedger, leader, clock, tracer, cfg.Auditor.Interval).Run(ctx)
		return nil
	})

	// HTTP 入口
	mux := http.NewServeMux()
	interfaces.NewOrderHandler(orderSvc).RegisterRoutes(mux)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: mux,
	}
	g.Go(func() error {
		logger.Ctx(ctx).Printf("INFO: %s listening on %s", serviceName, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("service exited with error: %v", err)
	}
	logger.Ctx(context.Background()).Printf("INFO: %s stopped", serviceName)
}
