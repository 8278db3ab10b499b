package game

// Tetrimino is a falling piece: its type, current shape and board origin
type Tetrimino struct {
	Type  Mino     `json:"type"`
	Shape [][]Mino `json:"shape"`
	X     int      `json:"x"`
	Y     int      `json:"y"`
}

var spawnShapes = map[Mino][]string{
	MinoI: {
		"....",
		"XXXX",
		"....",
		"....",
	},
	MinoJ: {
		"X..",
		"XXX",
		"...",
	},
	MinoL: {
		"..X",
		"XXX",
		"...",
	},
	MinoO: {
		"XX",
		"XX",
	},
	MinoS: {
		".XX",
		"XX.",
		"...",
	},
	MinoT: {
		".X.",
		"XXX",
		"...",
	},
	MinoZ: {
		"XX.",
		".XX",
		"...",
	},
}

// NewTetrimino creates a piece of the given type at its spawn position.
// It returns nil for an invalid type.
func NewTetrimino(m Mino) *Tetrimino {
	rows, ok := spawnShapes[m]
	if !ok {
		return nil
	}
	shape := make([][]Mino, len(rows))
	for i, row := range rows {
		shape[i] = make([]Mino, len(row))
		for j, c := range row {
			if c == 'X' {
				shape[i][j] = m
			}
		}
	}
	return &Tetrimino{
		Type:  m,
		Shape: shape,
		X:     (BoardWidth - len(shape)) / 2,
		Y:     0,
	}
}

// Clone returns a deep copy
func (t *Tetrimino) Clone() *Tetrimino {
	if t == nil {
		return nil
	}
	c := *t
	c.Shape = copyGrid(t.Shape)
	return &c
}

// Move shifts the piece one cell without any collision check
func (t *Tetrimino) Move(d Direction) {
	dx, dy := d.Delta()
	t.X += dx
	t.Y += dy
}

// Rotated returns the shape turned a quarter turn
func (t *Tetrimino) Rotated(clockwise bool) [][]Mino {
	n := len(t.Shape)
	out := make([][]Mino, n)
	for i := range out {
		out[i] = make([]Mino, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if clockwise {
				out[j][n-1-i] = t.Shape[i][j]
			} else {
				out[n-1-j][i] = t.Shape[i][j]
			}
		}
	}
	return out
}

// Cells returns the board coordinates (row, col) of every occupied cell
func (t *Tetrimino) Cells() [][2]int {
	var cells [][2]int
	for i, row := range t.Shape {
		for j, m := range row {
			if m != NoMino {
				cells = append(cells, [2]int{t.Y + i, t.X + j})
			}
		}
	}
	return cells
}

func copyGrid(g [][]Mino) [][]Mino {
	out := make([][]Mino, len(g))
	for i := range g {
		out[i] = append([]Mino(nil), g[i]...)
	}
	return out
}
