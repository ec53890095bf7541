// Package localserver provides the manager's control socket.
//
// The server listens on a Unix domain socket. Each connection carries one
// command line and receives one reply line:
//
//	status    ok <state>
//	reload    ok
//	shutdown  ok
//
// Failures are answered with "error <message>". Access is governed by the
// socket file's permissions, which are restricted to the owner.
package localserver
