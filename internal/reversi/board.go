package reversi

const (
	BoardSize = 8

	TokenBlack = "b"
	TokenWhite = "w"
	EmptyCell  = ""
)

// Board is an 8x8 grid of cells holding TokenBlack, TokenWhite or EmptyCell.
// The same type doubles as a legal-move grid, where a non-empty cell marks a
// playable position for that color.
type Board [BoardSize][BoardSize]string

// directions - all 8 neighbour offsets (row delta, column delta).
var directions = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// StartingBoard - returns a board with the standard four-token cluster.
func StartingBoard() Board {
	var board Board

	board[3][3] = TokenWhite
	board[3][4] = TokenBlack
	board[4][3] = TokenBlack
	board[4][4] = TokenWhite

	return board
}

// Opponent - returns the opposing color, or EmptyCell for anything else.
func Opponent(color string) string {
	switch color {
	case TokenBlack:
		return TokenWhite
	case TokenWhite:
		return TokenBlack
	default:
		return EmptyCell
	}
}

func onBoard(row, col int) bool {
	return row >= 0 && row < BoardSize && col >= 0 && col < BoardSize
}

// adjacentSupport - reports whether placing color at (row, col) is supported
// in direction (dr, dc): the neighbouring cell holds the opponent and an
// unbroken run of opponent tokens ends at a cell of our own color before an
// empty cell or the board edge.
func adjacentSupport(color string, dr, dc, row, col int, board *Board) bool {
	other := Opponent(color)
	if other == EmptyCell {
		return false
	}

	r, c := row+dr, col+dc
	if !onBoard(r, c) || board[r][c] != other {
		return false
	}

	for {
		r += dr
		c += dc

		if !onBoard(r, c) || board[r][c] == EmptyCell {
			return false
		}

		if board[r][c] == color {
			return true
		}
	}
}

// CalculateLegalMoves - marks every empty cell where color has at least one
// supporting direction. A fully empty grid means color has no move left.
func CalculateLegalMoves(color string, board *Board) Board {
	var legalMoves Board

	for row := 0; row < BoardSize; row++ {
		for col := 0; col < BoardSize; col++ {
			if board[row][col] != EmptyCell {
				continue
			}

			for _, dir := range directions {
				if adjacentSupport(color, dir[0], dir[1], row, col, board) {
					legalMoves[row][col] = color
					break
				}
			}
		}
	}

	return legalMoves
}

// flipLine - flips the bounded run of opponent tokens starting next to
// (row, col) in direction (dr, dc). Nothing is flipped when the run hits an
// empty cell or the board edge before a token of our own color.
func flipLine(color string, dr, dc, row, col int, board *Board) {
	other := Opponent(color)
	if other == EmptyCell {
		return
	}

	r, c := row+dr, col+dc

	run := 0
	for onBoard(r, c) && board[r][c] == other {
		r += dr
		c += dc
		run++
	}

	if run == 0 || !onBoard(r, c) || board[r][c] != color {
		return
	}

	for k := 1; k <= run; k++ {
		board[row+k*dr][col+k*dc] = color
	}
}

// FlipTokens - places color at (row, col) and flips captured runs in all 8
// directions. Every direction walks its own ray of the post-placement board,
// so sibling directions never observe each other's flips.
func FlipTokens(color string, row, col int, board *Board) {
	if !onBoard(row, col) {
		return
	}

	board[row][col] = color

	for _, dir := range directions {
		flipLine(color, dir[0], dir[1], row, col, board)
	}
}

// CountTokens - returns the number of black and white tokens on the board.
func CountTokens(board *Board) (int, int) {
	var black, white int

	for row := 0; row < BoardSize; row++ {
		for col := 0; col < BoardSize; col++ {
			switch board[row][col] {
			case TokenBlack:
				black++
			case TokenWhite:
				white++
			}
		}
	}

	return black, white
}

// CountLegalMoves - returns the number of playable cells in a legal-move grid.
func CountLegalMoves(grid *Board) int {
	count := 0

	for row := 0; row < BoardSize; row++ {
		for col := 0; col < BoardSize; col++ {
			if grid[row][col] != EmptyCell {
				count++
			}
		}
	}

	return count
}
