// MIT License

// Copyright (c) 2023 wetrycode

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:

// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wetrycode/nephila"
)

var apiLog *logrus.Entry = nephila.GetLogger("api")

// NephilaAPI 管理接口
type NephilaAPI struct {
	G    *gin.Engine
	S    *nephila.Server
	lock sync.Mutex
	// shutdownTimeout 通过接口停止服务时等待连接处理完成的时间
	shutdownTimeout time.Duration
}

type statusResp struct {
	Status     string            `json:"status"`
	ServerID   string            `json:"server_id"`
	Addr       string            `json:"addr"`
	StartAt    int64             `json:"start_at"`
	Uptime     float64           `json:"uptime"`
	Requests   uint64            `json:"requests"`
	Errors     uint64            `json:"errors"`
	Statistics map[string]uint64 `json:"statistics"`
}

func (t *NephilaAPI) stop(ctx *gin.Context) {
	t.lock.Lock()
	defer t.lock.Unlock()
	appG := Gin{Ctx: ctx}
	if t.S.GetRuntimeStatus().GetStatusOn() == nephila.ON_STOP {
		appG.Response(http.StatusOK, SERVER_ALREADY_STOPPED, "")
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()
	if err := t.S.Shutdown(shutdownCtx); err != nil {
		apiLog.Errorf("stop server error %s", err.Error())
		appG.Response(http.StatusInternalServerError, ERROR, err.Error())
		return
	}
	appG.Response(http.StatusOK, SUCCESS, "")
}

func (t *NephilaAPI) status(ctx *gin.Context) {
	statistic := t.S.GetStatic()
	runtimeStatus := t.S.GetRuntimeStatus()
	rsp := statusResp{
		Status:     runtimeStatus.GetStatusOn().GetTypeName(),
		ServerID:   nephila.ServerID,
		Addr:       t.S.Addr(),
		StartAt:    runtimeStatus.GetStartAt(),
		Uptime:     runtimeStatus.GetDuration(),
		Requests:   statistic.Get(nephila.RequestStats),
		Errors:     statistic.Get(nephila.ErrorStats),
		Statistics: statistic.GetAllStats(),
	}
	appG := Gin{Ctx: ctx}
	appG.Response(http.StatusOK, SUCCESS, rsp)
}

// Server 在addr上启动管理接口,ctx结束时关闭
func (t *NephilaAPI) Server(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      t.G,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	apiLog.Infof("admin api listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// NewAPI 创建管理接口
func NewAPI(server *nephila.Server) *NephilaAPI {
	API := &NephilaAPI{
		S:               server,
		shutdownTimeout: 5 * time.Second,
	}
	g := SetUp()

	v1Router := g.Group("/api/v1")
	v1Router.POST("/stop", API.stop)
	v1Router.GET("/status", API.status)
	g.NoRoute(func(ctx *gin.Context) {
		appG := Gin{Ctx: ctx}
		appG.Response(http.StatusNotFound, NOT_FOUND, nil)
	})
	API.G = g
	return API
}
