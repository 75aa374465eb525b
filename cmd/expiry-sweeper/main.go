package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockledger/internal/pkg/bootstrap"
	"stockledger/internal/pkg/logger"
	"stockledger/internal/pkg/redis"
	"stockledger/internal/service/inventory/application"
	"stockledger/internal/service/inventory/domain/port"
	"stockledger/internal/service/inventory/infrastructure"
)

// 独立的过期清扫进程。和 inventory-service 共享 MySQL 存储，
// 通过分布式 SKU 锁与在线流量安全竞争。注册表 CAS 保证每条
// 过期预留只被释放一次，多个清扫实例并行也是安全的。

const serviceName = "expiry-sweeper"

func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		RegisterHandlers: registerHandlers,
	})
}

func registerHandlers(appCtx bootstrap.AppCtx) {
	conf := appCtx.Conf
	log := logger.Logger()

	if !conf.Infra.MySQL.Enabled {
		log.Fatal().Msg("standalone sweeper requires mysql storage, memory mode sweeps in-process")
	}

	db, err := infrastructure.OpenMySQL(
		conf.Infra.MySQL.Addr,
		conf.Infra.MySQL.User,
		conf.Infra.MySQL.Password,
		conf.Infra.MySQL.Database,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}

	// 清扫产生的 expired 事件同样走外盒，由在线服务的中继器统一投递
	outbox := infrastructure.NewGormOutbox(db)

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
		log.Fatal().Str("lock_mode", conf.Engine.LockMode).
			Msg("standalone sweeper requires a distributed lock mode (redis or zookeeper)")
	}

	engine := application.NewReservationEngine(
		infrastructure.NewGormInventoryStore(db),
		infrastructure.NewGormReservationRegistry(db),
		infrastructure.NewGormLedgerStore(db),
		locker,
		infrastructure.NewOutboxPublisher(outbox),
		nil,
		conf.Engine.LockWait.Std(),
	)

	sweeper := application.NewExpirySweeper(engine, conf.Sweeper.Interval.Std(), conf.Sweeper.BatchSize)
	go sweeper.Start(appCtx.Ctx)

	appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	appCtx.Mux.Handle("/metrics", promhttp.Handler())
}
