// Package main provides the entry point for forkhttpd.
//
// forkhttpd serves a document root over HTTP from a pool of pre-forked
// workers. A manager process supervises one server generation at a time
// and replaces it on SIGHUP.
//
// Usage:
//
//	forkhttpd [options] [config_file]
//	forkhttpd -f -r /srv/www --port 8080
//	forkhttpd config -o table /etc/forkhttpd.yaml
//	forkhttpd ctl --socket /run/forkhttpd.sock status
package main
