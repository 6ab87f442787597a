package handler

import (
	"net/http"
	"time"

	"epoch/internal/config"
	"epoch/internal/ingest"
	"epoch/internal/middleware"
	"epoch/internal/session"
	"epoch/internal/store"
	"epoch/internal/verify"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const AdminTokenHeader = "X-Epoch-Token"

var timeNow = time.Now

type Deps struct {
	Config  *config.Config
	Store   *store.Store
	Machine *session.Machine
	Ingest  *ingest.Ingester
	Verify  *verify.Workflow
}

func NewRouter(d Deps) (*gin.Engine, error) {
	slackH := NewSlackHandler(d.Machine, d.Config.Slack)
	adminH := NewAdminHandler(d.Store, d.Machine, d.Verify)
	hookH, err := NewWebhookHandler(d.Ingest, d.Config.Webhooks)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLog())

	r.GET("/healthz", func(c *gin.Context) {
		if err := d.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	svc := r.Group("/services")
	svc.POST("/slack", slackH.Command)
	svc.POST("/git", hookH.GitHub)
	svc.POST("/gitlab", hookH.GitLab)
	svc.POST("/bitbucket", middleware.QueryOrHeaderSecret("token", AdminTokenHeader, d.Config.Webhooks.BitbucketToken), hookH.Bitbucket)

	corsCfg := cors.Config{
		AllowOrigins: d.Config.Admin.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", AdminTokenHeader},
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = []string{"*"}
	}

	api := r.Group("/api")
	api.Use(cors.New(corsCfg))
	api.Use(middleware.SharedSecret(AdminTokenHeader, d.Config.Admin.Token))
	api.GET("/status", adminH.Status)
	api.GET("/users/:name/logs", adminH.Logs)
	api.GET("/users/:name/pending", adminH.Pending)
	api.POST("/verify", adminH.Verify)
	api.POST("/force-logout", adminH.ForceLogout)

	return r, nil
}
