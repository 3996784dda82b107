package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"TowerMerge/config"
	"TowerMerge/internal/events"
	"TowerMerge/internal/game/card"
	"TowerMerge/internal/game/engine"
	"TowerMerge/internal/game/manager"
	"TowerMerge/internal/game/rules"
	"TowerMerge/internal/middleware"
	"TowerMerge/internal/room"
	"TowerMerge/internal/storage"
	"TowerMerge/internal/utils"
	"TowerMerge/internal/websocket"
)

func main() {
	config.Load()
	utils.Init(config.C.Log.Level)
	ctx := context.Background()

	//-------------------------------------------------------
	// 1. 初始化 Postgres（可选）+ 卡牌目录
	//-------------------------------------------------------
	if config.C.Database.DSN != "" {
		if err := storage.InitPostgres(config.C.Database.DSN); err != nil {
			utils.Log.Fatal("Postgres init failed", "err", err)
		}
		if err := storage.EnsureSchema(ctx, storage.DB); err != nil {
			utils.Log.Fatal("Postgres schema failed", "err", err)
		}
	}

	catalog := loadCatalog(ctx)
	for _, id := range config.C.Game.StartingDeck {
		if _, ok := catalog.Archetype(card.ID(id)); !ok {
			utils.Log.Warn("starting deck card missing from catalog", "card", id)
		}
	}

	//-------------------------------------------------------
	// 2. 初始化 Redis（为空时使用内存房间表，仅限单机）
	//-------------------------------------------------------
	var repo room.Repo
	if config.C.Redis.Addr != "" {
		if err := storage.InitRedis(ctx, config.C.Redis.Addr, config.C.Redis.Password, config.C.Redis.DB); err != nil {
			utils.Log.Fatal("Redis init failed", "err", err)
		}
		repo = room.NewRedisRepo(storage.Rdb)
	} else {
		utils.Log.Warn("redis.addr empty, rooms are kept in memory")
		repo = room.NewMemoryRepo()
	}

	//-------------------------------------------------------
	// 3. 初始化 Hub + NATS 转发（Hub 在游戏层接好之后再启动）
	//-------------------------------------------------------
	hub := websocket.NewHub()

	var push websocket.HubInterface = hub
	var gameMgr *manager.GameManager
	if config.C.Nats.URL != "" {
		nc, err := events.Connect(config.C.Nats.URL)
		if err != nil {
			utils.Log.Fatal("NATS connect failed", "err", err)
		}
		defer nc.Drain()
		push = events.NewRelay(hub, nc, func(p string) string { return gameMgr.RoomOf(p) })
	}

	//-------------------------------------------------------
	// 4. 初始化 GameManager（用来启动 Engine）
	//-------------------------------------------------------
	g := config.C.Game
	costs := rules.CostSchedule{Default: g.TowerBaseCost, Floor: g.TowerCostFloor}
	deck := make([]card.ID, len(g.StartingDeck))
	for i, id := range g.StartingDeck {
		deck[i] = card.ID(id)
	}
	gameMgr = manager.NewGameManager(push, catalog, engine.Options{
		HandSize:     g.HandSize,
		StartingGold: g.StartingGold,
		RoundIncome:  g.RoundIncome,
		Costs:        costs,
		StartingDeck: deck,
	})
	hub.OnIncoming = gameMgr.HandlePlayerMessage
	go hub.Run()

	//-------------------------------------------------------
	// 5. 房间登记：对局结束释放房间，定期续期 / 回收过期房间
	//-------------------------------------------------------
	svc := room.NewService(repo, g.RoomTTLSeconds, push)
	svc.OnRoomReady = gameMgr.StartRoom
	svc.OnRoomClosed = gameMgr.CloseRoom

	gameMgr.OnFinished = func(r engine.Report) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if storage.DB != nil {
			if err := storage.SaveReport(ctx, storage.DB, r); err != nil {
				utils.Log.Error("save report failed", "match", r.MatchID, "err", err)
			}
		}
		if err := svc.Release(ctx, r.MatchID); err != nil {
			utils.Log.Warn("release finished room failed", "room", r.MatchID, "err", err)
			gameMgr.CloseRoom(r.MatchID)
		}
	}
	go svc.RunSweeper(ctx, time.Duration(g.RoomSweepSeconds)*time.Second, gameMgr.Rooms)

	//-------------------------------------------------------
	// 6. Gin + CORS + 路由
	//-------------------------------------------------------
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	gh := manager.NewHandler(gameMgr, costs)
	r.GET("/economy/tower-cost", gh.TowerCost)

	secret := []byte(config.C.JWT.Secret)
	auth := r.Group("/", middleware.JwtAuthMiddleware(secret))
	{
		auth.GET("/ws", websocket.ServeWS(hub))

		rh := room.NewHandler(svc)
		auth.POST("/rooms", rh.Create)
		auth.GET("/rooms/:id", rh.Get)
		auth.DELETE("/rooms/:id", rh.Release)
		auth.GET("/rooms/:id/state", gh.State)
	}

	// 胜负由外部裁定：内部服务使用独立密钥
	if config.C.JWT.ServiceSecret != "" {
		internal := r.Group("/internal", middleware.ServiceAuthMiddleware([]byte(config.C.JWT.ServiceSecret)))
		internal.POST("/rooms/:id/finish", gh.Finish)
	} else {
		utils.Log.Warn("jwt.service_secret empty, match finish endpoint disabled")
	}

	//-------------------------------------------------------
	// 7. 启动服务器
	//-------------------------------------------------------
	utils.Log.Info("Server running", "addr", config.C.Server.Port)
	if err := r.Run(config.C.Server.Port); err != nil {
		utils.Log.Fatal("server stopped", "err", err)
	}
}

func loadCatalog(ctx context.Context) card.Catalog {
	var (
		cat card.MapCatalog
		err error
	)
	switch config.C.Catalog.Source {
	case "postgres":
		if storage.DB == nil {
			utils.Log.Fatal("catalog.source is postgres but database.dsn is empty")
		}
		cat, err = storage.LoadCatalog(ctx, storage.DB)
	default:
		cat, err = card.LoadCatalogFile(config.C.Catalog.Path)
	}
	if err != nil {
		utils.Log.Fatal("load card catalog failed", "source", config.C.Catalog.Source, "err", err)
	}
	utils.Log.Info("card catalog loaded", "source", config.C.Catalog.Source, "cards", len(cat))
	return cat
}
