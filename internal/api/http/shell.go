package http

import _ "embed"

//go:embed shell.html
var shellPage []byte
