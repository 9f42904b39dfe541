package nephila

import (
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
)

func TestDefaultLimit(t *testing.T) {
	convey.Convey("test limiter", t, func() {
		limit := NewDefaultLimiter(16)
		convey.So(limit.Rate(), convey.ShouldEqual, 16)
		start := time.Now()
		wg := &sync.WaitGroup{}
		for i := 0; i < 48; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := limit.CheckAndWaitLimiterPass()
				if err != nil {
					t.Errorf("CheckAndWaitLimiterPass error %s", err.Error())
				}
			}()
		}
		wg.Wait()
		convey.So(time.Since(start).Seconds(), convey.ShouldBeGreaterThan, 2)
	})
	convey.Convey("test unlimited", t, func() {
		limit := NewDefaultLimiter(0)
		convey.So(limit.Rate(), convey.ShouldEqual, 0)
		start := time.Now()
		for i := 0; i < 10000; i++ {
			_ = limit.CheckAndWaitLimiterPass()
		}
		convey.So(time.Since(start), convey.ShouldBeLessThan, time.Second)
	})
}
