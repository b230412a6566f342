package server

// ANSI colours for the route listing logged at startup.
const (
	green      = "\033[32m"
	blue       = "\033[34m"
	gray       = "\033[90m"
	resetColor = "\033[0m"
)

var methodColors = map[string]string{
	"GET":  green,
	"POST": blue,
}
