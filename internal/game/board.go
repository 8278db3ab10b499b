package game

// Board is the grid of locked cells for one player. Row 0 is the top.
type Board struct {
	cells [][]Mino
}

// NewBoard creates an empty board
func NewBoard() *Board {
	cells := make([][]Mino, BoardHeight)
	for i := range cells {
		cells[i] = make([]Mino, BoardWidth)
	}
	return &Board{cells: cells}
}

// At returns the cell content, NoMino when empty or out of bounds
func (b *Board) At(row, col int) Mino {
	if !inBounds(row, col) {
		return NoMino
	}
	return b.cells[row][col]
}

// IsFree reports whether the cell is inside the board and empty
func (b *Board) IsFree(row, col int) bool {
	return inBounds(row, col) && b.cells[row][col] == NoMino
}

func inBounds(row, col int) bool {
	return row >= 0 && row < BoardHeight && col >= 0 && col < BoardWidth
}

// FreeMask builds a width x height window of free cells around (x, y).
// mask[i][j] describes board cell (y-offsetY+i, x-offsetX+j).
func (b *Board) FreeMask(width, height, x, y, offsetX, offsetY int) [][]bool {
	mask := make([][]bool, height)
	for i := range mask {
		mask[i] = make([]bool, width)
		for j := range mask[i] {
			mask[i][j] = b.IsFree(y-offsetY+i, x-offsetX+j)
		}
	}
	return mask
}

// Fits reports whether every occupied cell of t is free
func (b *Board) Fits(t *Tetrimino) bool {
	for _, c := range t.Cells() {
		if !b.IsFree(c[0], c[1]) {
			return false
		}
	}
	return true
}

// Place writes the piece's cells into the board. Cells outside are skipped.
func (b *Board) Place(t *Tetrimino) {
	for _, c := range t.Cells() {
		if inBounds(c[0], c[1]) {
			b.cells[c[0]][c[1]] = t.Type
		}
	}
}

// RemoveLine deletes a row and shifts everything above it down by one
func (b *Board) RemoveLine(row int) bool {
	if row < 0 || row >= BoardHeight {
		return false
	}
	copy(b.cells[1:row+1], b.cells[:row])
	b.cells[0] = make([]Mino, BoardWidth)
	return true
}

// FullLines returns the indexes of completely filled rows, top to bottom
func (b *Board) FullLines() []int {
	var full []int
	for i, row := range b.cells {
		filled := true
		for _, m := range row {
			if m == NoMino {
				filled = false
				break
			}
		}
		if filled {
			full = append(full, i)
		}
	}
	return full
}

// Cells returns a copy of the grid
func (b *Board) Cells() [][]Mino {
	return copyGrid(b.cells)
}
