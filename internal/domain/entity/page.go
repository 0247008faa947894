package entity

type PageContent struct {
	URL   string
	Title string
}

type Screenshot struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Viewport is a forced page size. A nil *Viewport means the page keeps the
// size of the browser window.
type Viewport struct {
	Width  int
	Height int
}
