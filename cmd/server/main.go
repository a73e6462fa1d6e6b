package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweetlane/sweetshop/internal/config"
	"github.com/sweetlane/sweetshop/internal/events"
	"github.com/sweetlane/sweetshop/internal/httpx"
	"github.com/sweetlane/sweetshop/internal/order"
	"github.com/sweetlane/sweetshop/internal/store"
	"github.com/sweetlane/sweetshop/internal/sweet"
	"github.com/sweetlane/sweetshop/internal/user"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var (
		db  store.DB
		err error
	)
	switch cfg.DBDialect {
	case "postgres":
		db, err = store.ConnectPostgres(ctx, cfg.PostgresDSN)
	case "mysql":
		db, err = store.ConnectMySQL(ctx, cfg.MySQLDSN)
	default:
		log.Fatalf("unknown DB_DIALECT %q (want postgres or mysql)", cfg.DBDialect)
	}
	if err != nil {
		log.Fatalf("connect %s: %v", cfg.DBDialect, err)
	}
	defer db.Close()

	var pub *events.Publisher
	if cfg.AMQPURL != "" {
		pub, err = events.NewPublisher(cfg.AMQPURL, cfg.OrderExchange)
		if err != nil {
			log.Fatalf("connect amqp: %v", err)
		}
		defer pub.Close()
	}

	sweets := sweet.NewRepo(db)
	orders := order.NewRepo(db, order.Options{
		TrustClientTotal: cfg.TrustClientTotal,
		StrictStatus:     cfg.StrictStatus,
	})
	users := user.NewRepo(db)

	r := newRouter(sweets, orders, users, pub)
	log.Printf("sweetshop listening on %s", cfg.HTTPAddr)
	log.Fatal(r.Run(cfg.HTTPAddr))
}

func newRouter(sweets sweet.Repository, orders order.Repository, users user.Repository, pub *events.Publisher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(), httpx.Metrics())

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/sweets", listSweetsHandler(sweets))
		api.POST("/addsweet", createSweetHandler(sweets))
		api.PUT("/sweets/:id", updateSweetHandler(sweets))
		api.DELETE("/sweets/:id", deleteSweetHandler(sweets))
		api.PUT("/sweets/:id/stock", updateStockHandler(sweets, pub))

		api.POST("/orders", createOrderHandler(orders, pub))
		api.GET("/orders/user/:userId", listUserOrdersHandler(orders))
		api.GET("/orders/:orderId", getOrderHandler(orders))
		api.PUT("/orders/:orderId/status", updateOrderStatusHandler(orders, pub))
		api.PUT("/order-items/:itemId/status", updateOrderItemStatusHandler(orders, pub))

		api.POST("/register", registerHandler(users))
		api.POST("/user/login", loginHandler(users, false))
		api.POST("/login", loginHandler(users, true))

		admin := api.Group("/admin")
		{
			admin.GET("/orders", listAdminOrdersHandler(orders, false))
			admin.GET("/orders/detailed", listAdminOrdersHandler(orders, true))
			admin.GET("/users", listUsersHandler(users))
			admin.DELETE("/users/:id", deleteUserHandler(users))
			admin.GET("/banned-emails", listBansHandler(users))
			admin.POST("/banned-emails", banEmailHandler(users))
			admin.DELETE("/banned-emails/:id", unbanHandler(users))
		}
	}
	return r
}

func errJSON(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}
