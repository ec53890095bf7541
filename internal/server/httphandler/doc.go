// Package httphandler services one HTTP request per connection: static files
// below a document root, read-only.
//
// GET and HEAD are supported. Other methods get 501. A request for "/" is
// served from the index page. Missing files get 404, unreadable files and
// directories get 403, and requests that cannot be parsed get 400. Every
// error response carries a small HTML page.
package httphandler
