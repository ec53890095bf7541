// Package buildinfo holds the version stamped into the binary and the
// product token forkhttpd sends in the Server header.
//
// Values are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/forkhttpd/internal/infra/buildinfo.Version=v1.0.0"
package buildinfo
