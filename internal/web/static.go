package web

import (
	"embed"
)

// staticFiles holds the driver-station page, its CSS and JS.
// The final binary includes all files under static/.
//
//go:embed static/*
var staticFiles embed.FS
