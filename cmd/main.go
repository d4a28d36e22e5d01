package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"VoiceMatch/config"
	"VoiceMatch/internal/auth"
	"VoiceMatch/internal/matchmaker"
	"VoiceMatch/internal/metrics"
	"VoiceMatch/internal/middleware"
	"VoiceMatch/internal/rtctoken"
	"VoiceMatch/internal/storage"
	"VoiceMatch/internal/storage/migrations"
	"VoiceMatch/internal/user"
	"VoiceMatch/internal/utils"
	"VoiceMatch/internal/websocket"
)

func main() {
	config.Load()
	utils.Init(config.C.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	//-------------------------------------------------------
	// 1. 初始化 Redis / Postgres
	//-------------------------------------------------------
	if err := storage.InitRedis(ctx,
		config.C.Redis.Addr,
		config.C.Redis.Password,
		config.C.Redis.DB,
	); err != nil {
		utils.Log.Fatal("Redis init failed", "err", err)
	}
	defer storage.Rdb.Close()

	if err := storage.InitPostgres(ctx, config.C.Database.DSN); err != nil {
		utils.Log.Fatal("Postgres init failed", "err", err)
	}
	defer storage.DB.Close()

	if config.C.Database.Migrate {
		if err := migrations.Apply(ctx, storage.DB); err != nil {
			utils.Log.Fatal("migrate failed", "err", err)
		}
	}

	//-------------------------------------------------------
	// 2. 声网凭证：配置/环境变量优先，否则读凭证文件
	//-------------------------------------------------------
	appID, cert := config.C.RTC.AppID, config.C.RTC.AppCertificate
	if appID == "" || cert == "" {
		fileID, fileCert, err := rtctoken.LoadCredentialsFile(config.C.RTC.CredentialsFile)
		if err != nil {
			utils.Log.Warn("read rtc credentials file failed", "path", config.C.RTC.CredentialsFile, "err", err)
		}
		if appID == "" {
			appID = fileID
		}
		if cert == "" {
			cert = fileCert
		}
	}
	issuer := rtctoken.NewIssuer(appID, cert)
	if !issuer.Configured() {
		// 仍然可以匹配，只是 room/join 会失败
		utils.Log.Warn("rtc credentials missing, room join will fail")
	}

	//-------------------------------------------------------
	// 3. 认证
	//-------------------------------------------------------
	jwtResolver := auth.NewJWTResolver([]byte(config.C.JWT.Secret))
	var resolver auth.Resolver
	switch config.C.Auth.Mode {
	case "jwt":
		if !jwtResolver.Configured() {
			utils.Log.Fatal("auth.mode is jwt but jwt.secret is empty")
		}
		resolver = jwtResolver
	default:
		resolver = auth.NewSessionResolver(storage.Rdb, config.C.Auth.SessionPrefix)
	}
	if !jwtResolver.Configured() {
		utils.Log.Warn("jwt.secret not set, ws-token disabled")
	}

	//-------------------------------------------------------
	// 4. Hub + 跨实例推送
	//-------------------------------------------------------
	hub := websocket.NewHub()
	go hub.Run(ctx)

	prefix := config.C.Redis.KeyPrefix
	relay := websocket.NewRelay(storage.Rdb, prefix+"events", hub)
	go func() {
		if err := relay.Run(ctx); err != nil {
			utils.Log.Error("relay stopped", "err", err)
		}
	}()

	//-------------------------------------------------------
	// 5. 匹配系统
	//-------------------------------------------------------
	mm := config.C.Matchmaking
	repo := matchmaker.NewRedisRepo(storage.Rdb, prefix)
	ledger := matchmaker.NewPostgresLedger(storage.DB)
	engine := matchmaker.NewEngine(repo, ledger, relay, matchmaker.EngineOptions{
		MarkerTTL:     mm.MarkerTTL,
		MatchedTTL:    mm.MatchedTTL,
		RoomTTL:       mm.RoomTTL,
		AtomicPairPop: mm.AtomicPairPop,
	})
	svc := matchmaker.NewService(repo, ledger, engine, user.NewPostgresStore(storage.DB), issuer, matchmaker.Options{
		MarkerTTL: mm.MarkerTTL,
		TokenTTL:  config.C.RTC.TokenTTL,
	})

	if mm.ReapSchedule != "" {
		reaper := matchmaker.NewReaper(ledger, mm.RoomTTL)
		if err := reaper.Start(mm.ReapSchedule); err != nil {
			utils.Log.Fatal("invalid reap schedule", "schedule", mm.ReapSchedule, "err", err)
		}
		defer reaper.Stop()
	}

	if config.C.Metrics.Enabled {
		go metrics.SamplePools(ctx, repo, []string{matchmaker.PoolMale, matchmaker.PoolFemale}, config.C.Metrics.SampleInterval)
	}

	//-------------------------------------------------------
	// 6. Gin + CORS
	//-------------------------------------------------------
	gin.SetMode(config.C.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))

	r.GET("/health", func(c *gin.Context) {
		if err := storage.Rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if config.C.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	//-------------------------------------------------------
	// 7. 匹配路由
	//-------------------------------------------------------
	limiter := middleware.NewRateLimiter(mm.RatePerSecond, mm.RateBurst)
	limiter.StartCleanup(10*time.Minute, ctx.Done())

	api := r.Group("/voice-match", middleware.AuthMiddleware(resolver), limiter.Handler())
	matchmaker.NewHandler(svc).Register(api)

	// websocket 同时接受登录凭证和 ws-token 签发的短期 JWT，只有这里允许 ?token=
	wsResolver := resolver
	if jwtResolver.Configured() {
		api.POST("/ws-token", auth.NewHandler(jwtResolver).WSToken)
		wsResolver = auth.Chain{resolver, jwtResolver}
	}
	r.GET("/voice-match/ws",
		middleware.WSAuthMiddleware(wsResolver),
		websocket.ServeWS(hub),
	)

	//-------------------------------------------------------
	// 8. 启动服务器
	//-------------------------------------------------------
	srv := &http.Server{
		Addr:              config.C.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		utils.Log.Info("Server running", "addr", config.C.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Log.Fatal("listen failed", "err", err)
		}
	}()

	<-ctx.Done()
	utils.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Log.Error("graceful shutdown failed", "err", err)
	}
}
