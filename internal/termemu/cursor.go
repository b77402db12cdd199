package termemu

// cursor tracks position and the SGR template applied to newly written cells.
type cursor struct {
	row, col int
	template Cell
}

type savedCursor struct {
	row, col int
	template Cell
	valid    bool
}

func newCursor() cursor {
	return cursor{template: blankCell()}
}
