package auth

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRateLimiter(t *testing.T) {
	Convey("Given a limiter with a budget of 3 per hour", t, func() {
		limiter := NewRateLimiter(3, time.Hour)

		Convey("The first three operations pass", func() {
			So(limiter.Allow(), ShouldBeTrue)
			So(limiter.Allow(), ShouldBeTrue)
			So(limiter.Allow(), ShouldBeTrue)

			Convey("And the fourth is rejected", func() {
				So(limiter.Allow(), ShouldBeFalse)
			})
		})
	})

	Convey("Given a limiter that refills quickly", t, func() {
		limiter := NewRateLimiter(1, time.Millisecond*10)

		Convey("A drained bucket recovers after the interval", func() {
			So(limiter.Allow(), ShouldBeTrue)
			So(limiter.Allow(), ShouldBeFalse)

			time.Sleep(time.Millisecond * 20)
			So(limiter.Allow(), ShouldBeTrue)
		})
	})

	Convey("Given invalid construction parameters", t, func() {
		Convey("NewRateLimiter panics", func() {
			So(func() { NewRateLimiter(0, time.Second) }, ShouldPanic)
			So(func() { NewRateLimiter(10, 0) }, ShouldPanic)
		})
	})
}
