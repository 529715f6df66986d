package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"clipforge/config"
	"clipforge/handlers"
	"clipforge/services"
	"clipforge/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Configuration loaded: %s", cfg)

	for _, dir := range []string{cfg.TempDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	// Wire up services
	runner := utils.NewRunner(cfg.MaxConcurrentRenders, cfg.FFmpegTimeout)
	registry := services.NewJobRegistry()
	fetcher := services.NewFetchService(cfg.FetchTimeout)

	style := services.DefaultStyle()
	style.FontFamily = cfg.SubtitleFont
	style.FontSize = cfg.SubtitleFontSize
	subtitles := services.NewSubtitleService(style)

	renderer := services.NewRenderService(runner, cfg.VideoResolution, cfg.VideoPreset, cfg.AudioBitrate)
	composer := services.NewComposerService(runner)
	pipeline := services.NewPipelineService(cfg, fetcher, subtitles, renderer, composer, registry)
	videoHandler := handlers.NewVideoHandler(pipeline, registry, cfg.OutputDir)

	// Create Gin router
	router := gin.Default()

	// Setup CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	// Liveness probe
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "🎬 video composition service is running")
	})

	// API routes
	router.POST("/generate-video", videoHandler.Generate)
	router.POST("/merge-videos", videoHandler.Merge)
	router.GET("/status/:job_id", videoHandler.GetStatus)

	// Published artifacts, keyed by job id
	router.GET("/videos/:name", videoHandler.Download)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
