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

package nephila

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger = logrus.New()

// ServerID 当前进程的唯一标识,用于区分多个实例的日志和统计数据
var ServerID string = uuid.New().String()

// DefaultFieldHook 为每一条日志补充主机名
type DefaultFieldHook struct {
	hostname string
}

func newDefaultFieldHook() *DefaultFieldHook {
	name, _ := os.Hostname()
	return &DefaultFieldHook{hostname: name}
}

// Fire 实现logrus.Hook
func (hook *DefaultFieldHook) Fire(entry *logrus.Entry) error {
	entry.Data["hostname"] = hook.hostname
	return nil
}

// Levels 实现logrus.Hook
func (hook *DefaultFieldHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// GetLogger 获取带有模块名的日志记录器
func GetLogger(Name string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"logName": Name,
	})
}

// SetLogLevel 修改日志等级,空字符串视为info
func SetLogLevel(logLevel string) error {
	logLevel = strings.TrimSpace(logLevel)
	if logLevel == "" {
		logLevel = "info"
	}
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}

func initLog() {
	logger.SetReportCaller(true)
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		ForceQuote:      true,
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})
	logLevel := Config.GetString("log.level")
	if _, ex := os.LookupEnv("UNITTEST"); ex {
		logLevel = "error"
	}
	if err := SetLogLevel(logLevel); err != nil {
		panic(fmt.Errorf("fatal error parse level: %s", err))
	}
	logger.ReplaceHooks(make(logrus.LevelHooks))
	logger.AddHook(newDefaultFieldHook())
}
