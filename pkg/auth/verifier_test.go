package auth

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestVerifier(t *testing.T) {
	Convey("Given a verifier with a signing key", t, func() {
		verifier := NewVerifier([]byte("test-signing-key"))

		Convey("A token it issued resolves to its principal", func() {
			token, err := verifier.IssueToken("alice", time.Minute)
			So(err, ShouldBeNil)

			principal, rpcErr := verifier.Verify("Bearer " + token)
			So(rpcErr, ShouldBeNil)
			So(principal, ShouldEqual, "alice")
		})

		Convey("A missing header is rejected", func() {
			_, rpcErr := verifier.Verify("")
			So(rpcErr, ShouldNotBeNil)
			So(rpcErr.Message, ShouldContainSubstring, "missing authorization")
		})

		Convey("A garbage token is rejected", func() {
			_, rpcErr := verifier.Verify("Bearer not-a-jwt")
			So(rpcErr, ShouldNotBeNil)
			So(rpcErr.Message, ShouldContainSubstring, "invalid token")
		})

		Convey("An expired token is rejected", func() {
			token, err := verifier.IssueToken("alice", -time.Minute)
			So(err, ShouldBeNil)

			_, rpcErr := verifier.Verify("Bearer " + token)
			So(rpcErr, ShouldNotBeNil)
		})

		Convey("A token signed with a different key is rejected", func() {
			other := NewVerifier([]byte("some-other-key"))
			token, err := other.IssueToken("mallory", time.Minute)
			So(err, ShouldBeNil)

			_, rpcErr := verifier.Verify("Bearer " + token)
			So(rpcErr, ShouldNotBeNil)
		})
	})
}
