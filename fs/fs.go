// Package appfs embeds the files the binaries need at runtime.
package appfs

import "embed"

// EmailTemplatesDir is the directory of the email templates within FS.
const EmailTemplatesDir = "assets/templates/email"

//go:embed migrations/*.sql assets/templates/email/*
var FS embed.FS
