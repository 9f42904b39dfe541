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

package command

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/wetrycode/nephila"
	"github.com/wetrycode/nephila/api"
	"github.com/wetrycode/nephila/distributed"
	"github.com/wetrycode/nephila/metric"
)

var logger = nephila.GetLogger("command")

// NewRootCmd 服务启动命令,flag会覆盖settings.yaml和环境变量中的同名配置
func NewRootCmd() *cobra.Command {
	var configFile string
	rootCmd := &cobra.Command{
		Use:          "nephila",
		Short:        "nephila is a minimal HTTP/1.1 server based on golang",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				if err := nephila.Config.LoadFile(configFile); err != nil {
					return err
				}
			}
			return Run(cmd.Context(), nephila.Config)
		},
	}
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "settings file path")
	flags.StringP("directory", "d", "", "directory served by /files")
	flags.String("host", nephila.DefaultHost, "listen host")
	flags.Int("port", nephila.DefaultPort, "listen port")
	flags.String("api", "", "admin api address, empty to disable")
	_ = nephila.Config.BindPFlag("files.directory", flags.Lookup("directory"))
	_ = nephila.Config.BindPFlag("server.host", flags.Lookup("host"))
	_ = nephila.Config.BindPFlag("server.port", flags.Lookup("port"))
	_ = nephila.Config.BindPFlag("api.addr", flags.Lookup("api"))
	return rootCmd
}

// buildServer 按照配置组装路由和服务,cleanup用于释放外部连接
func buildServer(config *nephila.Configuration) (*nephila.Server, func(), error) {
	if err := nephila.SetLogLevel(config.GetString("log.level")); err != nil {
		return nil, nil, err
	}
	cfg, err := config.ServerSettings()
	if err != nil {
		return nil, nil, err
	}
	var store nephila.FileStore
	if dir := config.GetString("files.directory"); dir != "" {
		store = nephila.NewFileStore(dir)
	}
	router := nephila.NewRouter(store, nephila.RouterWithNegotiator(nephila.NewGzipNegotiator(config.GetInt("encoding.gzip_level"))))
	opts := []nephila.ServerOption{nephila.ServerWithConfig(cfg)}
	cleanup := func() {}
	if addr := config.GetString("stats.redis.addr"); addr != "" {
		rdb, err := distributed.NewRdbClient(distributed.NewRedisConfig(addr,
			config.GetString("stats.redis.username"),
			config.GetString("stats.redis.password"),
			config.GetUint32("stats.redis.db")))
		if err != nil {
			return nil, nil, err
		}
		key := config.GetString("stats.redis.key")
		opts = append(opts,
			nephila.ServerWithStatistic(distributed.NewRedisStatistic(rdb, key)),
			nephila.ServerWithDupeFilter(distributed.NewRedisDupeFilter(1024*1024, 0.001, rdb, key+":bf", 0)))
		cleanup = func() {
			rdb.Close()
		}
		logger.Infof("statistics shared through redis %s", addr)
	}
	return nephila.NewServer(router, opts...), cleanup, nil
}

// Run 启动服务直到ctx结束、收到退出信号或者通过管理接口停止
func Run(ctx context.Context, config *nephila.Configuration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	server, cleanup, err := buildServer(config)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	wg := conc.NewWaitGroup()
	if addr := config.GetString("api.addr"); addr != "" {
		admin := api.NewAPI(server)
		wg.Go(func() {
			if err := admin.Server(runCtx, addr); err != nil {
				logger.Errorf("admin api error %s", err.Error())
			}
		})
	}
	if url := config.GetString("metric.influxdb.url"); url != "" {
		collector := metric.NewMetricCollector(&metric.InfluxdbConfig{
			ServerURL: url,
			Token:     config.GetString("metric.influxdb.token"),
			Bucket:    config.GetString("metric.influxdb.bucket"),
			Org:       config.GetString("metric.influxdb.org"),
			Interval:  config.GetDuration("metric.influxdb.interval"),
		}, server.GetStatic(), server.GetRuntimeStatus())
		wg.Go(func() {
			defer collector.Close()
			collector.Start(runCtx)
		})
	}
	err = server.ListenAndServe(ctx)
	drainCtx, drainCancel := context.WithTimeout(context.Background(), config.GetDuration("server.shutdown_timeout"))
	if shutdownErr := server.Shutdown(drainCtx); shutdownErr != nil {
		logger.Warnf("shutdown error %s", shutdownErr.Error())
	}
	drainCancel()
	cancel()
	wg.Wait()
	if errors.Is(err, nephila.ErrServerClosed) {
		return nil
	}
	return err
}

// ExecuteCmd manage server by command
func ExecuteCmd() {
	if err := NewRootCmd().Execute(); err != nil {
		logger.Errorf("%s", err.Error())
		os.Exit(1)
	}
}
