// cmd/order-service/main.go
package main

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"oms/internal/pkg/bootstrap"
	"oms/internal/pkg/config"
	"oms/internal/pkg/httpclient"
	"oms/internal/pkg/logger"
	"oms/internal/pkg/mq"
	"oms/internal/pkg/redis"
	"oms/internal/service/order/application"
	"oms/internal/service/order/infrastructure"
	"oms/internal/service/order/infrastructure/adapter"
	"oms/internal/service/order/interfaces"
)

const (
	serviceName          = "order-service"
	orderEventsTopic     = "order-events"
	orderEventsDltTopic  = "order-events.DLT"
	orderConsumerGroupID = "order-saga-consumer-group"
	dltConsumerGroupID   = "order-dlt-consumer-group"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg := config.Load()
	brokers := strings.Split(cfg.Infra.KafkaBrokers, ",")

	db, err := gorm.Open(mysql.Open(cfg.Infra.MysqlDSN), &gorm.Config{})
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := db.AutoMigrate(&infrastructure.OrderModel{}, &infrastructure.OrderItemModel{}); err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to migrate order schema")
	}

	redisClient, err := redis.NewClient(cfg.Infra.RedisAddrs)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to initialize redis client")
	}

	eventWriter := mq.NewKafkaWriter(brokers, orderEventsTopic)
	dltWriter := mq.NewKafkaWriter(brokers, orderEventsDltTopic)
	eventReader := mq.NewKafkaReader(brokers, orderEventsTopic, orderConsumerGroupID)
	dltReader := mq.NewKafkaReader(brokers, orderEventsDltTopic, dltConsumerGroupID)

	tracer := otel.Tracer(serviceName)
	orderRepo := infrastructure.NewGormOrderRepository(db)
	eventProducer := infrastructure.NewOrderEventProducer(eventWriter)
	processedStore := infrastructure.NewRedisProcessedEventStore(redisClient)
	failureHandler := mq.NewFailureHandler(dltWriter)

	var consumer *interfaces.OrderEventConsumer
	dltConsumer := interfaces.NewDltConsumerAdapter(dltReader)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8081,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			// 库存网关要走注册中心，必须等 nacos 客户端就绪后组装
			inventoryGateway := adapter.NewInventoryHTTPAdapter(
				httpclient.NewClient(tracer, appCtx.Nacos), cfg.Order.ReserveCallTimeout)
			appSvc := application.NewOrderApplicationService(
				orderRepo, inventoryGateway, eventProducer, tracer, cfg.Order.MaxRetries)

			interfaces.NewOrderHandler(appSvc).RegisterRoutes(appCtx.Mux)

			consumer = interfaces.NewOrderEventConsumer(eventReader, appSvc, processedStore,
				eventProducer, failureHandler, cfg.Order.ProcessingTimeout)
			if err := consumer.Start(context.Background()); err != nil {
				logger.Logger().Fatal().Err(err).Msg("failed to start order event consumer")
			}
			if err := dltConsumer.Start(context.Background()); err != nil {
				logger.Logger().Fatal().Err(err).Msg("failed to start DLT consumer")
			}
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				if consumer != nil {
					consumer.Stop(ctx)
				}
				dltConsumer.Stop(ctx)
			},
			func(ctx context.Context) {
				eventWriter.Close()
				dltWriter.Close()
				redisClient.Close()
			},
		},
	})
}
