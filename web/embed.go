// Package web holds the browser-side assets compiled into the binary.
package web

import (
	"embed"
	"io/fs"
)

//go:embed sw.js.tmpl
var embedded embed.FS

// ServiceWorkerFS holds the service worker template. Tests may replace it.
var ServiceWorkerFS fs.FS = embedded

// ServiceWorkerTemplate is the template's name within ServiceWorkerFS.
const ServiceWorkerTemplate = "sw.js.tmpl"
