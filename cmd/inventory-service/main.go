// cmd/inventory-service/main.go
package main

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"oms/internal/pkg/bootstrap"
	"oms/internal/pkg/config"
	"oms/internal/pkg/logger"
	"oms/internal/pkg/mq"
	"oms/internal/pkg/zookeeper"
	"oms/internal/service/inventory/application"
	"oms/internal/service/inventory/infrastructure"
	"oms/internal/service/inventory/interfaces"
)

const (
	serviceName          = "inventory-service"
	inventoryEventsTopic = "inventory-events"
	zkSessionTimeout     = 5 * time.Second
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg := config.Load()

	db, err := gorm.Open(mysql.Open(cfg.Infra.MysqlDSN), &gorm.Config{})
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := db.AutoMigrate(&infrastructure.ProductModel{}); err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to migrate product schema")
	}

	zkConn, err := zookeeper.Connect(cfg.Infra.ZookeeperAddrs, zkSessionTimeout)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect to zookeeper")
	}

	eventWriter := mq.NewKafkaWriter(strings.Split(cfg.Infra.KafkaBrokers, ","), inventoryEventsTopic)

	tracer := otel.Tracer(serviceName)
	repo := infrastructure.NewGormProductRepository(db)
	locker := infrastructure.NewZkStockLocker(zkConn, cfg.Inventory.LockWait)
	eventProducer := infrastructure.NewInventoryEventProducer(eventWriter)

	service := application.NewInventoryService(
		repo, locker, eventProducer, tracer,
		cfg.Inventory.VersionRetries, cfg.Inventory.VersionRetryDelay)
	handler := interfaces.NewInventoryHandler(service)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8082,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				eventWriter.Close()
				zkConn.Close()
			},
		},
	})
}
