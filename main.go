package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"storylist/internal/config"
	"storylist/internal/genai"
	"storylist/internal/model"
	"storylist/internal/pipeline"
	"storylist/internal/store"
)

func main() {
	// 初始化日志
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.InfoLevel)

	// 加载配置（.env 可选）
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	// 初始化存储
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logrus.Fatalf("打开存储失败: %v", err)
	}
	defer st.Close()

	// 初始化合成器和故事流水线
	synth := genai.NewSynthesizer(cfg, st)
	assembler := pipeline.NewAssembler(st, synth)

	// 初始化Gin路由
	router := gin.Default()

	// 清单
	router.POST("/checklists", handleCreateChecklist(st))
	router.GET("/checklists/:id", handleGetChecklist(st))
	router.PUT("/checklists/:id", handlePutChecklist(st))

	// 设置
	router.GET("/settings/:key", handleGetSetting(st))
	router.PUT("/settings/:key", handlePutSetting(st))
	router.DELETE("/settings/:key", handleDeleteSetting(st))
	router.POST("/settings/child-image", handleCharacterImage(st, synth))

	// 故事
	router.POST("/checklists/:id/story", handlePrimeStory(assembler))
	router.GET("/checklists/:id/story", handleGetStory(st))
	router.DELETE("/checklists/:id/story", handleDeleteStory(st))
	router.POST("/checklists/:id/story/segments/:index/image", handleSegmentImage(assembler))

	// 启动服务器
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	// 在goroutine中启动服务器
	go func() {
		logrus.Infof("服务器启动在 %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("启动服务器失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("关闭服务器...")

	// 优雅关闭服务器
	if err := srv.Close(); err != nil {
		logrus.Fatalf("服务器关闭失败: %v", err)
	}

	logrus.Info("服务器已关闭")
}

// statusForError 将流水线和合成错误映射为HTTP状态码
func statusForError(err error) int {
	var synthErr *genai.SynthesisError
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrIndexOutOfRange):
		return http.StatusBadRequest
	case errors.As(err, &synthErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleCreateChecklist 创建清单并生成id
func handleCreateChecklist(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var items model.Checklist
		if err := c.ShouldBindJSON(&items); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}
		id := uuid.NewString()
		if err := st.PutChecklist(c.Request.Context(), id, items); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id, "items": items})
	}
}

// handleGetChecklist 读取清单
func handleGetChecklist(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, ok, err := st.GetChecklist(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "清单不存在"})
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

// handlePutChecklist 整体替换清单
func handlePutChecklist(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var items model.Checklist
		if err := c.ShouldBindJSON(&items); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}
		if err := st.PutChecklist(c.Request.Context(), c.Param("id"), items); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

// handleGetSetting 读取设置项
func handleGetSetting(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var value any
		ok, err := st.GetSetting(c.Request.Context(), c.Param("key"), &value)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "设置不存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"value": value})
	}
}

// handlePutSetting 写入设置项，整体覆盖
func handlePutSetting(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Value any `json:"value"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}
		if err := st.PutSetting(c.Request.Context(), c.Param("key"), req.Value); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleDeleteSetting 删除设置项
func handleDeleteSetting(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.DeleteSetting(c.Request.Context(), c.Param("key")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleCharacterImage 根据孩子描述生成角色参考图并存入设置
func handleCharacterImage(st *store.Store, synth *genai.Synthesizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		description, err := st.SettingString(ctx, model.SettingChildDescription)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if description == "" {
			description = model.DefaultChildDescription
		}
		image, err := synth.SynthesizeCharacterImage(ctx, description)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		if err := st.PutSetting(ctx, model.SettingChildImage, image); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"image": image})
	}
}

// handlePrimeStory 确保故事存在并预生成开头插画
func handlePrimeStory(assembler *pipeline.Assembler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := assembler.PrimeFirstSegment(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleGetStory 读取故事
func handleGetStory(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		story, ok, err := st.GetStory(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "故事不存在"})
			return
		}
		c.JSON(http.StatusOK, story)
	}
}

// handleDeleteStory 删除故事
func handleDeleteStory(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.DeleteStory(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleSegmentImage 确保指定段的插画已生成
func handleSegmentImage(assembler *pipeline.Assembler) gin.HandlerFunc {
	return func(c *gin.Context) {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的段下标"})
			return
		}
		generated, err := assembler.EnsureSegmentImage(c.Request.Context(), c.Param("id"), index)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"generated": generated})
	}
}
