package main

import (
	"context"

	"stockledger/internal/pkg/bootstrap"
	"stockledger/internal/pkg/logger"
	"stockledger/internal/pkg/mq"
	"stockledger/internal/pkg/redis"
	"stockledger/internal/service/inventory/application"
	"stockledger/internal/service/inventory/domain/port"
	"stockledger/internal/service/inventory/infrastructure"
	"stockledger/internal/service/inventory/infrastructure/rule"
	"stockledger/internal/service/inventory/interfaces"
)

const serviceName = "inventory-service"

func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		RegisterHandlers: registerHandlers,
	})
}

func registerHandlers(appCtx bootstrap.AppCtx) {
	conf := appCtx.Conf
	log := logger.Logger()

	writer := mq.NewKafkaWriter(conf.Infra.Kafka.Brokers, conf.Infra.Kafka.EventTopic)
	hub := interfaces.NewEventStreamHub()

	var (
		items     port.InventoryStore
		registry  port.ReservationRegistry
		ledger    port.LedgerStore
		publisher port.EventPublisher
	)

	if conf.Infra.MySQL.Enabled {
		db, err := infrastructure.OpenMySQL(
			conf.Infra.MySQL.Addr,
			conf.Infra.MySQL.User,
			conf.Infra.MySQL.Password,
			conf.Infra.MySQL.Database,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open mysql")
		}
		items = infrastructure.NewGormInventoryStore(db)
		registry = infrastructure.NewGormReservationRegistry(db)
		ledger = infrastructure.NewGormLedgerStore(db)

		// MySQL 模式下事件走事务外盒，由中继器异步投递到 Kafka
		outbox := infrastructure.NewGormOutbox(db)
		relay := infrastructure.NewOutboxRelay(outbox, writer, conf.Outbox.Interval.Std(), conf.Outbox.BatchSize)
		go relay.Start(appCtx.Ctx)
		publisher = infrastructure.NewCompositePublisher(infrastructure.NewOutboxPublisher(outbox), hub)
	} else {
		items = infrastructure.NewMemoryInventoryStore()
		registry = infrastructure.NewMemoryReservationRegistry()
		ledger = infrastructure.NewMemoryLedgerStore()
		publisher = infrastructure.NewCompositePublisher(infrastructure.NewKafkaEventPublisher(writer), hub)
	}

	var locker port.SKULocker
	switch conf.Engine.LockMode {
	case "redis":
		client := redis.NewClient(conf.Infra.Redis.Addr)
		redisLocker, err := infrastructure.NewRedisLocker(client)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis locker")
		}
		locker = redisLocker
		appCtx.OnShutdown(func(context.Context) { _ = client.Close() })
	case "zookeeper":
		zkLocker, err := infrastructure.NewZookeeperLocker(conf.Infra.Zookeeper.Servers)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize zookeeper locker")
		}
		locker = zkLocker
		appCtx.OnShutdown(func(context.Context) { zkLocker.Close() })
	default:
		locker = infrastructure.NewKeyMutexLocker()
	}
	log.Info().Str("lock_mode", conf.Engine.LockMode).Bool("mysql", conf.Infra.MySQL.Enabled).Msg("engine backends selected")

	var policy port.ReplenishmentPolicy = rule.NoopPolicy{}
	if len(conf.Replenish.Rules) > 0 {
		celPolicy, err := rule.NewCELPolicy(conf.Replenish.Rules)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to compile replenish rules")
		}
		policy = celPolicy
	}

	engine := application.NewReservationEngine(items, registry, ledger, locker, publisher, policy, conf.Engine.LockWait.Std())

	sweeper := application.NewExpirySweeper(engine, conf.Sweeper.Interval.Std(), conf.Sweeper.BatchSize)
	go sweeper.Start(appCtx.Ctx)

	handler := interfaces.NewInventoryHandler(engine)
	handler.RegisterRoutes(appCtx.Mux)
	appCtx.Mux.HandleFunc("/ws/events", hub.ServeWS)

	appCtx.OnShutdown(func(context.Context) {
		hub.Close()
		_ = writer.Close()
	})
}
