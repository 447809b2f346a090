package app

// Key binding constants used in handleKey. Outside topic entry, letters are
// commands; while typing a topic only ctrl+c, tab and enter are.
const (
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
	KeySpace     = " "
	KeyTab       = "tab"
	KeyEnter     = "enter"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyJ         = "j"
	KeyK         = "k"
	KeyReset     = "x"
	KeyRetry     = "r"
	KeyNew       = "n"
)
